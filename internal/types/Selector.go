package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// AllAssetsSentinel is the pool calling convention for "every coin".
const AllAssetsSentinel = -1

type selectorKind uint8

const (
	selectorUnset selectorKind = iota
	selectorAll
	selectorSpecific
)

// AssetSelector chooses between a balanced multi-asset operation and a single
// pool coin. The zero value is invalid and rejected by the planners.
type AssetSelector struct {
	kind  selectorKind
	index int
}

// AllAssets selects every base asset.
func AllAssets() AssetSelector {
	return AssetSelector{kind: selectorAll}
}

// SpecificAsset selects the base asset at a pool coin index.
func SpecificAsset(index int) AssetSelector {
	return AssetSelector{kind: selectorSpecific, index: index}
}

// SelectorFromSentinel converts the venue convention (-1 = all) to a selector.
func SelectorFromSentinel(index int) (AssetSelector, error) {
	switch {
	case index == AllAssetsSentinel:
		return AllAssets(), nil
	case index >= 0:
		return SpecificAsset(index), nil
	default:
		return AssetSelector{}, fmt.Errorf("invalid asset index %d", index)
	}
}

func (s AssetSelector) IsValid() bool { return s.kind != selectorUnset }

func (s AssetSelector) IsAll() bool { return s.kind == selectorAll }

// Index returns the coin index for a specific selector.
func (s AssetSelector) Index() (int, bool) {
	if s.kind != selectorSpecific {
		return 0, false
	}
	return s.index, true
}

// Sentinel returns the venue calling-convention integer.
func (s AssetSelector) Sentinel() int {
	if s.kind == selectorAll {
		return AllAssetsSentinel
	}
	return s.index
}

func (s AssetSelector) String() string {
	switch s.kind {
	case selectorAll:
		return "all"
	case selectorSpecific:
		return strconv.Itoa(s.index)
	default:
		return "unset"
	}
}

func (s AssetSelector) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return []byte("null"), nil
	}
	return json.Marshal(s.Sentinel())
}

func (s *AssetSelector) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = AssetSelector{}
		return nil
	}
	var index int
	if err := json.Unmarshal(data, &index); err != nil {
		return err
	}
	sel, err := SelectorFromSentinel(index)
	if err != nil {
		return err
	}
	*s = sel
	return nil
}
