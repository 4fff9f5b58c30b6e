// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"fmt"
	"math"
	"strings"
)

// MaxNameLen bounds identifier fields and data source names.
const MaxNameLen = 63

// DataSource describes one value of a data set. Min and Max are NaN when unset.
type DataSource struct {
	Name string
	Type DSType
	Min  float64
	Max  float64
}

func NewDataSource(name string, typ DSType) DataSource {
	return DataSource{Name: name, Type: typ, Min: math.NaN(), Max: math.NaN()}
}

func (ds DataSource) equal(other DataSource) bool {
	return strings.EqualFold(ds.Name, other.Name) &&
		ds.Type == other.Type &&
		floatEqual(ds.Min, other.Min) &&
		floatEqual(ds.Max, other.Max)
}

// InRange reports whether a gauge is within the configured bounds.
func (ds DataSource) InRange(v float64) bool {
	if !math.IsNaN(ds.Min) && v < ds.Min {
		return false
	}
	if !math.IsNaN(ds.Max) && v > ds.Max {
		return false
	}
	return true
}

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

// DataSet is the schema of a type.
type DataSet struct {
	Type    string
	Sources []DataSource
}

// Validate checks name limits and source uniqueness.
func (ds *DataSet) Validate() error {
	if ds.Type == "" || len(ds.Type) > MaxNameLen {
		return fmt.Errorf("%w: invalid type name '%s'", ErrInvalid, ds.Type)
	}
	if len(ds.Sources) == 0 {
		return fmt.Errorf("%w: type '%s' has no data sources", ErrInvalid, ds.Type)
	}
	seen := make(map[string]bool, len(ds.Sources))
	for _, src := range ds.Sources {
		if src.Name == "" || len(src.Name) > MaxNameLen {
			return fmt.Errorf("%w: type '%s': invalid data source name '%s'", ErrInvalid, ds.Type, src.Name)
		}
		key := strings.ToLower(src.Name)
		if seen[key] {
			return fmt.Errorf("%w: type '%s': duplicate data source '%s'", ErrInvalid, ds.Type, src.Name)
		}
		seen[key] = true
	}
	return nil
}

// Equal reports whether two data sets describe the same schema.
func (ds *DataSet) Equal(other *DataSet) bool {
	if ds == nil || other == nil {
		return ds == other
	}
	if !strings.EqualFold(ds.Type, other.Type) || len(ds.Sources) != len(other.Sources) {
		return false
	}
	for i := range ds.Sources {
		if !ds.Sources[i].equal(other.Sources[i]) {
			return false
		}
	}
	return true
}

// Check verifies that vl carries one value per source with matching kinds.
func (ds *DataSet) Check(vl *ValueList) error {
	if len(vl.Values) != len(ds.Sources) {
		return fmt.Errorf("%w: %s has %d values, type '%s' expects %d",
			ErrValueCount, vl.Identifier(), len(vl.Values), ds.Type, len(ds.Sources))
	}
	for i, src := range ds.Sources {
		if vl.Values[i].Kind != src.Type {
			return fmt.Errorf("%w: %s value #%d is %s, data source '%s' is %s",
				ErrInvalid, vl.Identifier(), i, vl.Values[i].Kind, src.Name, src.Type)
		}
	}
	return nil
}

// Index returns the position of the named source, or -1.
func (ds *DataSet) Index(name string) int {
	for i, src := range ds.Sources {
		if strings.EqualFold(src.Name, name) {
			return i
		}
	}
	return -1
}

func (ds *DataSet) String() string {
	var sb strings.Builder
	sb.WriteString(ds.Type)
	for i, src := range ds.Sources {
		if i == 0 {
			sb.WriteByte('\t')
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s:%s:%s:%s", src.Name, src.Type, boundString(src.Min), boundString(src.Max))
	}
	return sb.String()
}

func boundString(v float64) string {
	if math.IsNaN(v) {
		return "U"
	}
	return fmt.Sprintf("%g", v)
}
