// Package progression awards XP and derives levels from it.
package progression

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Level is one row of a LevelTable.
type Level struct {
	Level     int   `yaml:"level" json:"level"`
	Threshold int64 `yaml:"threshold" json:"threshold"`
}

// LevelTable maps XP to levels. Rows are ascending in both level and
// threshold and the first threshold is 0.
type LevelTable struct {
	levels []Level
}

// DefaultLevels is the table used when no LEVELS_FILE is configured.
var DefaultLevels = MustLevelTable([]Level{
	{Level: 1, Threshold: 0},
	{Level: 2, Threshold: 100},
	{Level: 3, Threshold: 300},
	{Level: 4, Threshold: 600},
	{Level: 5, Threshold: 1000},
	{Level: 6, Threshold: 1500},
	{Level: 7, Threshold: 2100},
	{Level: 8, Threshold: 2800},
	{Level: 9, Threshold: 3600},
	{Level: 10, Threshold: 4500},
})

// NewLevelTable validates levels and builds a table from them.
func NewLevelTable(levels []Level) (LevelTable, error) {
	if len(levels) == 0 {
		return LevelTable{}, errors.New("level table is empty")
	}
	if levels[0].Threshold != 0 {
		return LevelTable{}, fmt.Errorf("first threshold must be 0, got %d", levels[0].Threshold)
	}
	for i := 1; i < len(levels); i++ {
		prev, cur := levels[i-1], levels[i]
		if cur.Level <= prev.Level {
			return LevelTable{}, fmt.Errorf("level %d does not ascend after level %d", cur.Level, prev.Level)
		}
		if cur.Threshold <= prev.Threshold {
			return LevelTable{}, fmt.Errorf("threshold for level %d must exceed %d", cur.Level, prev.Threshold)
		}
	}
	return LevelTable{levels: append([]Level(nil), levels...)}, nil
}

// MustLevelTable is NewLevelTable for static tables.
func MustLevelTable(levels []Level) LevelTable {
	t, err := NewLevelTable(levels)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadLevelTable reads a YAML file of the form
//
//	levels:
//	  - level: 1
//	    threshold: 0
func LoadLevelTable(path string) (LevelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LevelTable{}, fmt.Errorf("failed to read level table: %w", err)
	}
	var doc struct {
		Levels []Level `yaml:"levels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return LevelTable{}, fmt.Errorf("failed to parse level table %s: %w", path, err)
	}
	return NewLevelTable(doc.Levels)
}

// LevelFor returns the highest level whose threshold xp has reached.
func (t LevelTable) LevelFor(xp int64) int {
	for i := len(t.levels) - 1; i >= 0; i-- {
		if xp >= t.levels[i].Threshold {
			return t.levels[i].Level
		}
	}
	return t.levels[0].Level
}

// Levels returns a copy of the table rows.
func (t LevelTable) Levels() []Level {
	return append([]Level(nil), t.levels...)
}
