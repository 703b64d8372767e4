package types

// Validation records why a fence or file edit may not be trusted. A nil
// *Validation means nothing was checked.
type Validation struct {
	SchemaID    string `json:"schema_id,omitempty"`
	SchemaError string `json:"schema_error,omitempty"`
	// ApplyError is set when no reconciler could apply the block to the file.
	ApplyError string `json:"apply_error,omitempty"`
}

// Valid reports whether neither schema nor reconciliation failed.
func (v *Validation) Valid() bool {
	return v == nil || (v.SchemaError == "" && v.ApplyError == "")
}

// FileEdit is the running before/after record for one file in a session.
// Before is nil when the file did not exist; After is nil until a block
// targeting the file has been applied.
type FileEdit struct {
	Filename   string      `json:"filename"`
	Before     *string     `json:"before"`
	After      *string     `json:"after"`
	Validation *Validation `json:"validation,omitempty"`
}

// Changed reports whether the edit should be persisted.
func (f *FileEdit) Changed() bool {
	if f.After == nil {
		return false
	}
	if f.Before == nil {
		return true
	}
	return *f.Before != *f.After
}

// Persistable is Changed and free of schema errors.
func (f *FileEdit) Persistable() bool {
	return f.Changed() && (f.Validation == nil || f.Validation.SchemaError == "")
}

// EditType classifies an Edit record.
type EditType string

const (
	EditReplace    EditType = "replace"
	EditCreateFile EditType = "createfile"
	EditInsert     EditType = "insert"
	EditDelete     EditType = "delete"
)

// Edit is a flattened, caller-facing mutation derived from FileEdits or
// proposed directly by a tool.
type Edit struct {
	Type      EditType    `json:"type"`
	Filename  string      `json:"filename"`
	Label     string      `json:"label,omitempty"`
	Text      string      `json:"text,omitempty"`
	Overwrite bool        `json:"overwrite,omitempty"`
	Validated *Validation `json:"validated,omitempty"`
}

// Fence is a labelled, delimited block extracted from backend text.
type Fence struct {
	Label      string            `json:"label"`
	Language   string            `json:"language,omitempty"`
	Content    string            `json:"content"`
	Args       map[string]string `json:"args,omitempty"`
	Validation *Validation       `json:"validation,omitempty"`
}

// Diagnostic is an annotation lifted from the generated text.
type Diagnostic struct {
	Severity string `json:"severity"` // info, warning, error
	Filename string `json:"filename"`
	Line     int    `json:"line"`     // 1-based
	EndLine  int    `json:"end_line"` // 1-based, inclusive
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}
