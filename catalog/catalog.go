// Package catalog persists the system catalog: a DbMeta (database name and
// its set of TabMeta) serialized to a single text file per database. The
// format is engine-defined, requiring only that a read -> write -> read
// round trip be byte-stable when nothing in memory changed; built on
// github.com/hashicorp/hcl the same way this engine's own configuration
// file is decoded: hcl.Decode into a generic map[string]interface{}.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl"

	"github.com/kestreldb/kestrel/kschema"
)

// DbMeta is a database's name and the set of tables it owns.
type DbMeta struct {
	Name   string
	Tables []kschema.TabMeta
}

// Save writes db to path as HCL text. Table and column order are
// preserved exactly as given, so repeated Save calls on an unchanged
// DbMeta produce byte-identical output.
func Save(path string, db DbMeta) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "database = %q\n", db.Name)
	for _, t := range db.Tables {
		fmt.Fprintf(&sb, "\ntable %q {\n", t.Name)
		for _, c := range t.Cols {
			fmt.Fprintf(&sb, "  column {\n")
			fmt.Fprintf(&sb, "    name    = %q\n", c.Name)
			fmt.Fprintf(&sb, "    type    = %q\n", dataTypeName(c.Type))
			fmt.Fprintf(&sb, "    len     = %d\n", c.Len)
			fmt.Fprintf(&sb, "    indexed = %t\n", c.Indexed)
			fmt.Fprintf(&sb, "  }\n")
		}
		for _, im := range t.Indexes {
			names := make([]string, len(im.Cols))
			for i, c := range im.Cols {
				names[i] = c.Name
			}
			fmt.Fprintf(&sb, "  index %q {\n", im.Name)
			fmt.Fprintf(&sb, "    columns = [%s]\n", quoteList(names))
			fmt.Fprintf(&sb, "  }\n")
		}
		fmt.Fprintf(&sb, "}\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

func quoteList(ss []string) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(parts, ", ")
}

func dataTypeName(t kschema.DataType) string {
	switch t {
	case kschema.INT32:
		return "INT32"
	case kschema.FLOAT32:
		return "FLOAT32"
	case kschema.FIXEDCHAR:
		return "FIXED_CHAR"
	default:
		return "INT32"
	}
}

func parseDataType(s string) (kschema.DataType, error) {
	switch s {
	case "INT32":
		return kschema.INT32, nil
	case "FLOAT32":
		return kschema.FLOAT32, nil
	case "FIXED_CHAR":
		return kschema.FIXEDCHAR, nil
	default:
		return 0, fmt.Errorf("catalog: unknown column type %q", s)
	}
}

// Load reads and decodes path, reconstructing the DbMeta. Columns keep the
// order they were declared in the file; tables, and each table's indexes,
// are returned sorted by name.
func Load(path string) (DbMeta, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return DbMeta{}, err
	}

	var raw map[string]interface{}
	if err := hcl.Decode(&raw, string(buf)); err != nil {
		return DbMeta{}, fmt.Errorf("catalog: decode %s: %w", path, err)
	}

	db := DbMeta{}
	if name, ok := raw["database"].(string); ok {
		db.Name = name
	}

	tablesRaw, ok := raw["table"]
	if !ok {
		return db, nil
	}
	tableMap, ok := namedBlockMap(tablesRaw)
	if !ok {
		return db, fmt.Errorf("catalog: %s: malformed table block", path)
	}

	names := make([]string, 0, len(tableMap))
	for name := range tableMap {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tm, err := decodeTable(name, tableMap[name])
		if err != nil {
			return DbMeta{}, err
		}
		db.Tables = append(db.Tables, tm)
	}
	return db, nil
}

// namedBlockMap normalizes an HCL-decoded block collection keyed by label
// (e.g. `table "widgets" { ... }`) into a name -> block-value map. hcl.Decode
// represents repeated labeled blocks as []map[string]interface{}, a list of
// single-key maps, rather than a single map[string]interface{}.
func namedBlockMap(v interface{}) (map[string]interface{}, bool) {
	switch vv := v.(type) {
	case map[string]interface{}:
		return vv, true
	case []map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for _, m := range vv {
			for name, val := range m {
				if existing, ok := out[name]; ok {
					out[name] = append(asBlockList(existing), asBlockList(val)...)
				} else {
					out[name] = val
				}
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func asBlockList(v interface{}) []map[string]interface{} {
	switch vv := v.(type) {
	case []map[string]interface{}:
		return vv
	case map[string]interface{}:
		return []map[string]interface{}{vv}
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(vv))
		for _, e := range vv {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func decodeTable(name string, v interface{}) (kschema.TabMeta, error) {
	blocks := asBlockList(v)
	if len(blocks) != 1 {
		return kschema.TabMeta{}, fmt.Errorf("catalog: table %q: expected one block, got %d", name, len(blocks))
	}
	body := blocks[0]

	tm := kschema.TabMeta{Name: name}
	colsByName := map[string]kschema.ColMeta{}
	for _, cv := range asBlockList(body["column"]) {
		c, err := decodeColumn(name, cv)
		if err != nil {
			return kschema.TabMeta{}, err
		}
		tm.Cols = append(tm.Cols, c)
		colsByName[c.Name] = c
	}
	tm.Cols = kschema.MakeColumns(tm.Cols)
	for i := range tm.Cols {
		colsByName[tm.Cols[i].Name] = tm.Cols[i]
	}

	indexRaw, ok := body["index"]
	if ok {
		indexMap, ok := namedBlockMap(indexRaw)
		if !ok {
			return kschema.TabMeta{}, fmt.Errorf("catalog: table %q: malformed index block", name)
		}
		inames := make([]string, 0, len(indexMap))
		for iname := range indexMap {
			inames = append(inames, iname)
		}
		sort.Strings(inames)
		for _, iname := range inames {
			im, err := decodeIndex(name, iname, indexMap[iname], colsByName)
			if err != nil {
				return kschema.TabMeta{}, err
			}
			tm.Indexes = append(tm.Indexes, im)
		}
	}
	return tm, nil
}

func decodeColumn(table string, v interface{}) (kschema.ColMeta, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return kschema.ColMeta{}, fmt.Errorf("catalog: table %q: malformed column block", table)
	}
	name, _ := m["name"].(string)
	typeName, _ := m["type"].(string)
	dt, err := parseDataType(typeName)
	if err != nil {
		return kschema.ColMeta{}, err
	}
	length, err := toUint32(m["len"])
	if err != nil {
		return kschema.ColMeta{}, err
	}
	indexed, _ := m["indexed"].(bool)
	return kschema.ColMeta{Name: name, Table: table, Type: dt, Len: length, Indexed: indexed}, nil
}

func decodeIndex(table, name string, v interface{}, colsByName map[string]kschema.ColMeta) (kschema.IndexMeta, error) {
	blocks := asBlockList(v)
	if len(blocks) != 1 {
		return kschema.IndexMeta{}, fmt.Errorf("catalog: table %q: index %q: expected one block", table, name)
	}
	body := blocks[0]
	colsRaw, _ := body["columns"].([]interface{})
	im := kschema.IndexMeta{Name: name, Table: table}
	for _, cr := range colsRaw {
		cname, _ := cr.(string)
		c, ok := colsByName[cname]
		if !ok {
			return kschema.IndexMeta{}, fmt.Errorf("catalog: table %q: index %q: unknown column %q", table, name, cname)
		}
		im.Cols = append(im.Cols, c)
	}
	return im, nil
}

func toUint32(v interface{}) (uint32, error) {
	switch vv := v.(type) {
	case int:
		return uint32(vv), nil
	case int64:
		return uint32(vv), nil
	case float64:
		return uint32(vv), nil
	default:
		return 0, fmt.Errorf("catalog: expected integer, got %T", v)
	}
}
