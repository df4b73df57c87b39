package sqlagent

import "fmt"

// Dialect describes the SQL flavor of the structured store.
type Dialect struct {
	Driver string
	Name   string
	// topStyle is true for dialects that cap rows with SELECT TOP n.
	topStyle bool
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlserver":
		return Dialect{Driver: driver, Name: "T-SQL (SQL Server / Azure SQL)", topStyle: true}, nil
	case "postgres":
		return Dialect{Driver: driver, Name: "PostgreSQL"}, nil
	case "sqlite":
		return Dialect{Driver: driver, Name: "SQLite"}, nil
	}
	return Dialect{}, fmt.Errorf("unsupported store driver %q", driver)
}

// RowLimitRule is the generation instruction for capping rows at n.
func (d Dialect) RowLimitRule(n int) string {
	if d.topStyle {
		return fmt.Sprintf("Must include TOP %d right after SELECT unless an aggregation is requested.", n)
	}
	return fmt.Sprintf("Must end with LIMIT %d unless an aggregation is requested.", n)
}
