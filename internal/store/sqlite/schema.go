package sqlite

// Queries against the ItemTable key/value table of state.vscdb.
const (
	countQuery  = `SELECT COUNT(*) FROM ItemTable`
	selectValue = `SELECT value FROM ItemTable WHERE key = ?`
	updateValue = `UPDATE ItemTable SET value = ? WHERE key = ?`
	insertValue = `INSERT INTO ItemTable (key, value) VALUES (?, ?)`
)
