package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aman-zulfiqar/orbital-amm/internal/amm"
	"github.com/aman-zulfiqar/orbital-amm/internal/fixedpoint"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

var ErrInvalidDefinition = errors.New("invalid pool definition")

// TickDefinition bounds are reserve sums in token units.
type TickDefinition struct {
	Lower     string `json:"lower"`
	Upper     string `json:"upper"`
	Liquidity string `json:"liquidity"`
}

// Definition is the file form of a pool. Every number is a decimal string
// in token units with at most 18 fractional digits.
type Definition struct {
	Name        string           `json:"name"`
	Tokens      []string         `json:"tokens"`
	Curve       string           `json:"curve"`
	Exponent    string           `json:"exponent,omitempty"`
	Invariant   string           `json:"invariant"`
	Reserves    []string         `json:"reserves"`
	Ticks       []TickDefinition `json:"ticks,omitempty"`
	Center      string           `json:"center,omitempty"`
	ToleranceBP uint64           `json:"tolerance_bp,omitempty"`
}

// LoadDefinitions reads a JSON array of definitions.
func LoadDefinitions(path string) ([]Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}
	var defs []Definition
	if err := json.Unmarshal(b, &defs); err != nil {
		return nil, fmt.Errorf("decode pools file %s: %w", path, err)
	}
	return defs, nil
}

func parseField(name, s string) (*uint256.Int, error) {
	v, err := fixedpoint.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidDefinition, name, s, err)
	}
	return v, nil
}

// ParseCurve maps "sphere" or "superellipse" plus an optional exponent to
// a curve type.
func ParseCurve(name, exponent string) (amm.CurveType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sphere", "":
		return amm.Sphere(), nil
	case "superellipse":
		u, err := parseField("exponent", exponent)
		if err != nil {
			return amm.CurveType{}, err
		}
		return amm.Superellipse(u), nil
	default:
		return amm.CurveType{}, fmt.Errorf("%w: unknown curve %q", ErrInvalidDefinition, name)
	}
}

// ParseTick converts a tick definition to engine units.
func ParseTick(t TickDefinition) (amm.Tick, error) {
	lower, err := parseField("tick lower", t.Lower)
	if err != nil {
		return amm.Tick{}, err
	}
	upper, err := parseField("tick upper", t.Upper)
	if err != nil {
		return amm.Tick{}, err
	}
	liquidity, err := parseField("tick liquidity", t.Liquidity)
	if err != nil {
		return amm.Tick{}, err
	}
	return amm.Tick{Lower: lower, Upper: upper, Liquidity: liquidity}, nil
}

// Config validates the textual parts of d and converts it to a pool
// configuration. Curve-level validation is left to amm.NewPoolState.
func (d Definition) Config() (amm.PoolConfig, error) {
	if strings.TrimSpace(d.Name) == "" {
		return amm.PoolConfig{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Tokens) != len(d.Reserves) {
		return amm.PoolConfig{}, fmt.Errorf("%w: %d tokens but %d reserves", ErrInvalidDefinition, len(d.Tokens), len(d.Reserves))
	}
	seen := make(map[string]struct{}, len(d.Tokens))
	for _, sym := range d.Tokens {
		key := strings.ToUpper(strings.TrimSpace(sym))
		if key == "" {
			return amm.PoolConfig{}, fmt.Errorf("%w: empty token symbol", ErrInvalidDefinition)
		}
		if _, dup := seen[key]; dup {
			return amm.PoolConfig{}, fmt.Errorf("%w: duplicate token %s", ErrInvalidDefinition, sym)
		}
		seen[key] = struct{}{}
	}

	curve, err := ParseCurve(d.Curve, d.Exponent)
	if err != nil {
		return amm.PoolConfig{}, err
	}
	invariant, err := parseField("invariant", d.Invariant)
	if err != nil {
		return amm.PoolConfig{}, err
	}

	reserves := make([]*uint256.Int, len(d.Reserves))
	for i, s := range d.Reserves {
		if reserves[i], err = parseField("reserve", s); err != nil {
			return amm.PoolConfig{}, err
		}
	}

	ticks := make([]amm.Tick, len(d.Ticks))
	for i, t := range d.Ticks {
		if ticks[i], err = ParseTick(t); err != nil {
			return amm.PoolConfig{}, err
		}
	}

	cfg := amm.PoolConfig{
		Reserves:    reserves,
		Curve:       curve,
		Invariant:   invariant,
		Ticks:       ticks,
		ToleranceBP: d.ToleranceBP,
	}
	if d.Center != "" {
		if cfg.Center, err = parseField("center", d.Center); err != nil {
			return amm.PoolConfig{}, err
		}
	}
	return cfg, nil
}

// ID hashes the parsed definition with BLAKE3 and returns the base58 text
// of the 32-byte digest. Equivalent decimal spellings give the same ID.
func (d Definition) ID() (string, error) {
	cfg, err := d.Config()
	if err != nil {
		return "", err
	}

	h := blake3.New()
	writeString(h, d.Name)
	writeUint(h, uint64(len(d.Tokens)))
	for _, sym := range d.Tokens {
		writeString(h, strings.ToUpper(strings.TrimSpace(sym)))
	}
	writeUint(h, uint64(cfg.Curve.Kind))
	writeInt(h, cfg.Curve.Exponent)
	writeInt(h, cfg.Invariant)
	for _, r := range cfg.Reserves {
		writeInt(h, r)
	}
	writeUint(h, uint64(len(cfg.Ticks)))
	for _, t := range cfg.Ticks {
		writeInt(h, t.Lower)
		writeInt(h, t.Upper)
		writeInt(h, t.Liquidity)
	}

	var digest [32]byte
	if _, err := h.Digest().Read(digest[:]); err != nil {
		return "", fmt.Errorf("pool id digest: %w", err)
	}
	return base58.Encode(digest[:]), nil
}

func writeString(h *blake3.Hasher, s string) {
	writeUint(h, uint64(len(s)))
	_, _ = h.Write([]byte(s))
}

func writeUint(h *blake3.Hasher, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, _ = h.Write(b[:])
}

func writeInt(h *blake3.Hasher, v *uint256.Int) {
	var b [32]byte
	if v != nil {
		b = v.Bytes32()
	}
	_, _ = h.Write(b[:])
}
