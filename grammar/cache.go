package grammar

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/token"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("grammar: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// cacheFile is the on-disk form of a built table.
type cacheFile struct {
	BuiltAt    int64      `cbor:"1,keyasint"`
	SourceHash []byte     `cbor:"2,keyasint"`
	Axiom      uint8      `cbor:"3,keyasint"`
	States     int        `cbor:"4,keyasint"`
	Actions    []Action   `cbor:"5,keyasint"`
	Rules      []wireRule `cbor:"6,keyasint"`
	Decides    int        `cbor:"7,keyasint"`
	Conflicts  int        `cbor:"8,keyasint"`
}

type wireRule struct {
	Left  uint8   `cbor:"1,keyasint"`
	Right []uint8 `cbor:"2,keyasint"`
	Data  uint8   `cbor:"3,keyasint"`
	Node  uint8   `cbor:"4,keyasint"`
	Merge uint8   `cbor:"5,keyasint"`
}

// Source is a grammar description together with the time it last changed.
type Source struct {
	Data    []byte
	ModTime time.Time
}

// ReadSource loads a grammar description and its modification time.
func ReadSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("cannot stat grammar %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("cannot read grammar %s: %w", path, err)
	}
	return Source{Data: data, ModTime: info.ModTime()}, nil
}

// BuildCached returns the table for src, reusing the table stored at
// cachePath when it was built after src last changed from identical source
// text. Otherwise the table is rebuilt and the cache rewritten. Failing to
// write the cache is logged and does not fail the build.
func BuildCached(src Source, cachePath string, log zerolog.Logger) (*Table, error) {
	hash := sha256.Sum256(src.Data)
	if cachePath != "" {
		if t, ok := readCache(cachePath, src, hash[:], log); ok {
			return t, nil
		}
	}
	g, err := Parse(src.Data)
	if err != nil {
		return nil, err
	}
	t, err := g.Build(log)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := writeCache(cachePath, t, hash[:]); err != nil {
			log.Warn().Err(err).Str("path", cachePath).Msg("cannot write parse table cache")
		}
	}
	return t, nil
}

func readCache(path string, src Source, hash []byte, log zerolog.Logger) (*Table, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var cf cacheFile
	if err := cbor.Unmarshal(data, &cf); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("ignoring unreadable parse table cache")
		return nil, false
	}
	if cf.BuiltAt < src.ModTime.UnixNano() || string(cf.SourceHash) != string(hash) {
		log.Debug().Str("path", path).Msg("parse table cache is stale")
		return nil, false
	}
	t, err := cf.table()
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("ignoring invalid parse table cache")
		return nil, false
	}
	return t, true
}

func writeCache(path string, t *Table, hash []byte) error {
	cf := cacheFile{
		BuiltAt:    time.Now().UnixNano(),
		SourceHash: hash,
		Axiom:      uint8(t.axiom),
		States:     t.states,
		Actions:    t.actions,
		Decides:    t.decides,
		Conflicts:  t.conflicts,
	}
	for _, r := range t.rules {
		wr := wireRule{
			Left:  uint8(r.Left),
			Data:  uint8(r.Data.Data),
			Node:  uint8(r.Data.Node),
			Merge: uint8(r.Data.Merge),
		}
		for _, k := range r.Right {
			wr.Right = append(wr.Right, uint8(k))
		}
		cf.Rules = append(cf.Rules, wr)
	}
	data, err := cborEncMode.Marshal(cf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (cf *cacheFile) table() (*Table, error) {
	if cf.States <= 0 || len(cf.Actions) != cf.States*token.Count {
		return nil, fmt.Errorf("table has %d cells for %d states", len(cf.Actions), cf.States)
	}
	t := newTable(token.Kind(cf.Axiom), cf.States, nil)
	copy(t.actions, cf.Actions)
	t.decides = cf.Decides
	t.conflicts = cf.Conflicts
	for i, wr := range cf.Rules {
		r := Rule{
			Index: i,
			Left:  token.Kind(wr.Left),
			Data: RuleData{
				Data:  token.Kind(wr.Data),
				Node:  ast.NodeType(wr.Node),
				Merge: token.Kind(wr.Merge),
			},
		}
		for _, k := range wr.Right {
			r.Right = append(r.Right, token.Kind(k))
		}
		t.rules = append(t.rules, r)
	}
	return t, nil
}
