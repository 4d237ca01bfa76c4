// Package sniff identifies content types from leading bytes.
//
// A signature table of hex patterns, with "??" standing for any byte, is
// compiled into a prefix index. Detect prefers the most specific signature
// matching the data and falls back to mimetype's detectors. Text types
// carry the charset reported by chardet.
package sniff

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/trie"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
)

//go:embed signatures.yaml
var builtin []byte

// Match sources.
const (
	SourceSignature = "signature"
	SourceMimetype  = "mimetype"
)

// Signature is one entry of the table.
type Signature struct {
	Name    string `yaml:"name" toml:"name" json:"name"`
	MIME    string `yaml:"mime" toml:"mime" json:"mime"`
	Ext     string `yaml:"ext" toml:"ext" json:"ext"`
	Pattern string `yaml:"pattern" toml:"pattern" json:"pattern"`
}

// Match is the outcome of Detect.
type Match struct {
	Name    string `json:"name,omitempty"`
	MIME    string `json:"mime"`
	Ext     string `json:"ext,omitempty"`
	Charset string `json:"charset,omitempty"`
	Source  string `json:"source"`
}

// Detector holds a compiled signature table.
type Detector struct {
	index  *trie.Index[*compiled]
	sigs   []Signature
	maxLen int
	log    *zap.Logger
}

type compiled struct {
	sig Signature
	key trie.Key
}

// New compiles signatures into a Detector.
func New(sigs []Signature, log *zap.Logger) (*Detector, error) {
	if log == nil {
		log = zap.NewNop()
	}

	entries := make([]trie.Entry[*compiled], 0, len(sigs))
	maxLen := 0
	for _, sig := range sigs {
		key, err := trie.ParsePattern(sig.Pattern)
		if err != nil {
			return nil, fmt.Errorf("signature %q: %w", sig.Name, err)
		}
		entries = append(entries, trie.Entry[*compiled]{Key: key, Value: &compiled{sig: sig, key: key}})
		maxLen = max(maxLen, len(key))
	}

	d := &Detector{
		index:  trie.Build(entries),
		sigs:   append([]Signature(nil), sigs...),
		maxLen: maxLen,
		log:    log.Named("sniff"),
	}
	d.log.Debug("signature table compiled",
		zap.Int("signatures", len(sigs)),
		zap.Int("height", d.index.Height()),
	)
	return d, nil
}

// Default returns a Detector over the embedded table.
func Default(log *zap.Logger) (*Detector, error) {
	return WithFiles("", log)
}

// Signatures returns the compiled table.
func (d *Detector) Signatures() []Signature {
	return append([]Signature(nil), d.sigs...)
}

// Detect identifies data.
func (d *Detector) Detect(data []byte) Match {
	head := data
	if len(head) > d.maxLen {
		head = head[:d.maxLen]
	}

	var best *compiled
	for _, c := range d.index.GetAllPrefixMatches(trie.FromBytes(head)) {
		if best == nil || len(c.key) > len(best.key) {
			best = c
		}
	}

	var m Match
	if best != nil {
		m = Match{Name: best.sig.Name, MIME: best.sig.MIME, Ext: best.sig.Ext, Source: SourceSignature}
	} else {
		mt := mimetype.Detect(data)
		mime, _, _ := strings.Cut(mt.String(), ";")
		m = Match{MIME: mime, Ext: mt.Extension(), Source: SourceMimetype}
	}

	if strings.HasPrefix(m.MIME, "text/") && len(data) > 0 {
		m.Charset = charset(data)
	}
	return m
}

// Lookup returns the signature stored under pattern. Wildcard positions in
// either pattern compare equal.
func (d *Detector) Lookup(pattern string) (Signature, bool, error) {
	key, err := trie.ParsePattern(pattern)
	if err != nil {
		return Signature{}, false, err
	}
	c, ok := d.index.Get(key)
	if !ok {
		return Signature{}, false, nil
	}
	return c.sig, true, nil
}

func charset(data []byte) string {
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil {
		return ""
	}
	return res.Charset
}
