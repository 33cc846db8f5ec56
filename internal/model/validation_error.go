package model

// ValidationError is a finding raised against a report during validation.
// Rows are created by seeding and are read-only afterwards.
type ValidationError struct {
	ID        int64   `db:"id" json:"id"`
	ReportID  int64   `db:"report_id" json:"report_id"`
	ErrorType string  `db:"error_type" json:"error_type"`
	Message   string  `db:"error_message" json:"error_message"`
	FieldName *string `db:"field_name" json:"field_name"`

	Comments []ErrorComment `db:"-" json:"comments"`
}

// ErrorComment is one entry of a validation error's comment thread. Comments
// are append-only.
type ErrorComment struct {
	ID        int64  `db:"id" json:"id"`
	ErrorID   int64  `db:"error_id" json:"error_id"`
	UserID    int64  `db:"user_id" json:"user_id"`
	Username  string `db:"username" json:"username"`
	Comment   string `db:"comment" json:"comment"`
	CreatedAt string `db:"created_at" json:"created_at"`
}
