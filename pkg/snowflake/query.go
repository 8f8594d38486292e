package snowflake

import "fmt"

// SanitizeIdentifier strips everything outside [A-Za-z0-9_] from a table or
// column identifier. Identifiers are the only text ever interpolated into
// query strings; values always travel as bound parameters.
func SanitizeIdentifier(identifier string) string {
	out := make([]byte, 0, len(identifier))
	for i := 0; i < len(identifier); i++ {
		c := identifier[i]
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '_':
			out = append(out, c)
		}
	}
	return string(out)
}

// BatchQuery builds the one query shape the importer issues: a full-row
// window over the table ordered ascending by the configured column. The
// offset is left as a bound parameter.
func BatchQuery(table, orderBy string, limit int64) string {
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s ASC LIMIT %d OFFSET ?",
		SanitizeIdentifier(table), SanitizeIdentifier(orderBy), limit)
}
