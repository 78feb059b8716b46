package display

import (
	"strings"

	"flapchain/property"
	"flapchain/protocol"
)

// Dimensions returns the display layout derived from the column_end bit
// of module_info. The chain runs down each column, so module i sits at
// column i/rows, row i%rows. Without column information the display is a
// single row.
func (d *Display) Dimensions() (cols, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dimensions()
}

func (d *Display) dimensions() (cols, rows int) {
	n := len(d.modules)
	if n == 0 {
		return 0, 0
	}
	for _, m := range d.modules {
		var info property.ModuleInfo
		if err := info.UnmarshalBinary(m.values[protocol.PropertyModuleInfo]); err == nil && info.ColumnEnd {
			cols++
		}
	}
	if cols == 0 || n%cols != 0 {
		return n, 1
	}
	return cols, n / cols
}

// characterSet returns the known character set of a module
func (m *Module) characterSet() property.CharacterSet {
	var cs property.CharacterSet
	if err := cs.UnmarshalBinary(m.values[protocol.PropertyCharacterSet]); err != nil || len(cs) == 0 {
		return property.ParseCharacterSet(property.DefaultCharacterSet)
	}
	return cs
}

// moduleAt maps a position in reading order to the chain index
func moduleAt(pos, cols, rows int) int {
	row, col := pos/cols, pos%cols
	return col*rows + row
}

// SetMessage lays text out over the display in reading order and stores
// the resulting character index per module. Characters missing from a
// module's set show as its first flap; modules past the end of text are
// blanked. Returns the number of characters that could not be shown.
func (d *Display) SetMessage(text string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cols, rows := d.dimensions()
	n := cols * rows
	runes := []rune(strings.ToUpper(text))
	missing := 0

	for pos := 0; pos < n; pos++ {
		ch := " "
		if pos < len(runes) {
			ch = string(runes[pos])
		}
		m := d.modules[moduleAt(pos, cols, rows)]
		idx := m.characterSet().Index(ch)
		if idx < 0 {
			idx = 0
			missing++
		}
		m.values[protocol.PropertyCharacter] = []byte{byte(idx)}
		m.desync |= 1 << protocol.PropertyCharacter
	}
	if len(runes) > n {
		missing += len(runes) - n
	}
	return missing
}

// Message returns the displayed text in reading order, one line per row
func (d *Display) Message() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	cols, rows := d.dimensions()
	var b strings.Builder
	for row := 0; row < rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		for col := 0; col < cols; col++ {
			m := d.modules[col*rows+row]
			ch := "?"
			if v := m.values[protocol.PropertyCharacter]; len(v) == 1 {
				if cs := m.characterSet(); int(v[0]) < len(cs) {
					ch = cs[v[0]]
				}
			}
			b.WriteString(ch)
		}
	}
	return b.String()
}
