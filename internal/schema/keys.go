package schema

import (
	"fmt"
	"strings"
)

// Tension cells are addressed layer-first ("L2_A1"); the adaptive question
// bank and ambiguity zones address the same pair axis-first ("A1_L2"). Both
// spellings exist in stored data, so the conversions live here.

// #region node-key

// NodeKey builds the axis-first diagnostic node key.
func NodeKey(a Axis, l Layer) string {
	return fmt.Sprintf("%s_%s", a, l)
}

// NodeKeys returns all 20 node keys in axis-major canonical order.
func NodeKeys() []string {
	keys := make([]string, 0, 20)
	for _, a := range Axes() {
		for _, l := range Layers() {
			keys = append(keys, NodeKey(a, l))
		}
	}
	return keys
}

// ParseNodeKey splits an axis-first node key into its axis and layer.
func ParseNodeKey(node string) (Axis, Layer, error) {
	parts := strings.SplitN(node, "_", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed node key %q", node)
	}
	a := Axis(parts[0])
	l := Layer(parts[1])
	if !validAxis(a) {
		return "", "", fmt.Errorf("node key %q: unknown axis %q", node, parts[0])
	}
	if !validLayer(l) {
		return "", "", fmt.Errorf("node key %q: unknown layer %q", node, parts[1])
	}
	return a, l, nil
}

// #endregion

// #region cell-key

// ParseCellKey splits a layer-first tension cell key into its layer and axis.
func ParseCellKey(cell string) (Layer, Axis, error) {
	parts := strings.SplitN(cell, "_", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed cell key %q", cell)
	}
	l := Layer(parts[0])
	a := Axis(parts[1])
	if !validLayer(l) {
		return "", "", fmt.Errorf("cell key %q: unknown layer %q", cell, parts[0])
	}
	if !validAxis(a) {
		return "", "", fmt.Errorf("cell key %q: unknown axis %q", cell, parts[1])
	}
	return l, a, nil
}

// NodeFromCell converts a layer-first cell key to its axis-first node key.
func NodeFromCell(cell string) (string, error) {
	l, a, err := ParseCellKey(cell)
	if err != nil {
		return "", err
	}
	return NodeKey(a, l), nil
}

// #endregion

// #region membership

func validAxis(a Axis) bool {
	switch a {
	case AxisA1, AxisA2, AxisA3, AxisA4:
		return true
	}
	return false
}

func validLayer(l Layer) bool {
	switch l {
	case LayerL0, LayerL1, LayerL2, LayerL3, LayerL4:
		return true
	}
	return false
}

// AxisIndex returns the canonical position of an axis, 0-3. Unknown axes sort
// last.
func AxisIndex(a Axis) int {
	for i, x := range Axes() {
		if x == a {
			return i
		}
	}
	return len(Axes())
}

// LayerIndex returns the canonical position of a layer, 0-4. Unknown layers
// sort last.
func LayerIndex(l Layer) int {
	for i, x := range Layers() {
		if x == l {
			return i
		}
	}
	return len(Layers())
}

// #endregion
