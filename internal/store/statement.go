package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

// StatementKind is the verb of a parsed statement
type StatementKind int

const (
	KindSelect StatementKind = iota
	KindInsert
	KindUpdate
	KindDelete
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Assignment is one "field = :param" pair of an UPDATE
type Assignment struct {
	Field string
	Param string
}

// Statement is a parsed query of the supported subset:
//
//	SELECT * FROM c [WHERE _id = :p]
//	INSERT INTO c DOCUMENTS (:p)[, (:q)...] [ON ID CONFLICT DO UPDATE]
//	UPDATE c SET f = :p[, g = :q] WHERE _id = :id
//	DELETE FROM c [WHERE _id = :id]
type Statement struct {
	Kind       StatementKind
	Collection string
	IDParam    string
	DocParams  []string
	Upsert     bool
	Sets       []Assignment
	Raw        string
}

const ident = `([A-Za-z_][A-Za-z0-9_]*)`

var (
	selectRe = regexp.MustCompile(`(?i)^SELECT\s+\*\s+FROM\s+` + ident + `(?:\s+WHERE\s+_id\s*=\s*:` + ident + `)?$`)
	insertRe = regexp.MustCompile(`(?i)^INSERT\s+INTO\s+` + ident + `\s+DOCUMENTS\s+(.+?)(\s+ON\s+ID\s+CONFLICT\s+DO\s+UPDATE)?$`)
	docRe    = regexp.MustCompile(`^\(\s*:` + ident + `\s*\)$`)
	updateRe = regexp.MustCompile(`(?i)^UPDATE\s+` + ident + `\s+SET\s+(.+?)\s+WHERE\s+_id\s*=\s*:` + ident + `$`)
	setRe    = regexp.MustCompile(`^` + ident + `\s*=\s*:` + ident + `$`)
	deleteRe = regexp.MustCompile(`(?i)^DELETE\s+FROM\s+` + ident + `(?:\s+WHERE\s+_id\s*=\s*:` + ident + `)?$`)
)

// ParseStatement parses query, returning ErrUnsupportedQuery for anything
// outside the supported subset
func ParseStatement(query string) (*Statement, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	q = strings.TrimSpace(q)

	if m := selectRe.FindStringSubmatch(q); m != nil {
		return &Statement{Kind: KindSelect, Collection: m[1], IDParam: m[2], Raw: query}, nil
	}

	if m := insertRe.FindStringSubmatch(q); m != nil {
		params, err := splitDocParams(m[2])
		if err != nil {
			return nil, NewQueryError(query, err)
		}
		return &Statement{
			Kind:       KindInsert,
			Collection: m[1],
			DocParams:  params,
			Upsert:     m[3] != "",
			Raw:        query,
		}, nil
	}

	if m := updateRe.FindStringSubmatch(q); m != nil {
		sets, err := splitAssignments(m[2])
		if err != nil {
			return nil, NewQueryError(query, err)
		}
		return &Statement{Kind: KindUpdate, Collection: m[1], Sets: sets, IDParam: m[3], Raw: query}, nil
	}

	if m := deleteRe.FindStringSubmatch(q); m != nil {
		return &Statement{Kind: KindDelete, Collection: m[1], IDParam: m[2], Raw: query}, nil
	}

	return nil, NewQueryError(query, ErrUnsupportedQuery)
}

func splitDocParams(list string) ([]string, error) {
	parts := strings.Split(list, ",")
	params := make([]string, 0, len(parts))
	for _, part := range parts {
		m := docRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf("%w: document list %q", ErrUnsupportedQuery, list)
		}
		params = append(params, m[1])
	}
	return params, nil
}

func splitAssignments(list string) ([]Assignment, error) {
	parts := strings.Split(list, ",")
	sets := make([]Assignment, 0, len(parts))
	for _, part := range parts {
		m := setRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf("%w: assignment %q", ErrUnsupportedQuery, part)
		}
		if m[1] == "_id" {
			return nil, fmt.Errorf("%w: _id cannot be updated", ErrUnsupportedQuery)
		}
		sets = append(sets, Assignment{Field: m[1], Param: m[2]})
	}
	return sets, nil
}

// IDFrom resolves the statement's _id parameter. ok is false when the
// statement has no WHERE clause.
func (s *Statement) IDFrom(params map[string]any) (id string, ok bool, err error) {
	if s.IDParam == "" {
		return "", false, nil
	}
	raw, present := params[s.IDParam]
	if !present {
		return "", true, fmt.Errorf("%w: %s", ErrMissingParam, s.IDParam)
	}
	id, isString := raw.(string)
	if !isString {
		return "", true, fmt.Errorf("parameter %s must be a string id", s.IDParam)
	}
	return id, true, nil
}

// Documents resolves the INSERT document parameters into documents, each
// of which must carry a non-empty _id
func (s *Statement) Documents(params map[string]any) ([]Document, error) {
	docs := make([]Document, 0, len(s.DocParams))
	for _, name := range s.DocParams {
		raw, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		doc, err := ToDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		if doc.ID() == "" {
			return nil, fmt.Errorf("parameter %s: document has no _id", name)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ToDocument normalizes a map or struct into a Document with JSON-typed values
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document must be an object")
	}
	return doc, nil
}

// Merge applies patch over base field by field
func Merge(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
