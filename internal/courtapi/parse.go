package courtapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"github.com/spf13/cast"
)

// Movement is one court event in the common schema. Fields the vendor did
// not send are left empty.
type Movement struct {
	ProcessNumber string                 `json:"process_number"`
	Date          *time.Time             `json:"date"`
	Code          string                 `json:"code"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Origin        string                 `json:"origin"`
	Raw           map[string]interface{} `json:"raw"`
}

var (
	movementListKeys = []string{"movimentos", "movimentacoes", "movements", "eventos", "andamentos", "items", "data"}

	dateKeys        = []string{"dataHora", "data", "dataMovimento", "dataMovimentacao", "data_movimentacao", "date", "datetime"}
	codeKeys        = []string{"codigo", "codigoNacional", "codigoMovimento", "codigo_movimento", "code", "tipoMovimento"}
	nameKeys        = []string{"nome", "movimento", "titulo", "name", "title", "descricaoMovimento"}
	descriptionKeys = []string{"descricao", "complemento", "complementosTabelados", "complementos", "texto", "description", "observacao"}
	originKeys      = []string{"orgaoJulgador", "origem", "vara", "serventia", "orgao", "origin"}

	// keys read from nested objects when a field holds an object
	nestedKeys = []string{"nome", "descricao", "name", "description", "valor", "value"}

	listKeys = map[database.QueryType][]string{
		database.QueryParties:   {"partes", "parties", "polos", "envolvidos", "items", "data"},
		database.QueryDocuments: {"documentos", "arquivos", "documents", "items", "data"},
		database.QueryHearings:  {"audiencias", "hearings", "items", "data"},
	}

	dateLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"02/01/2006",
		"20060102150405",
	}
)

// ParseMovements normalizes a decoded movements payload. Items that are not
// JSON objects are skipped.
func ParseMovements(payload interface{}, processNumber string) []Movement {
	items := findList(payload, movementListKeys, 1)
	movements := make([]Movement, 0, len(items))

	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		movements = append(movements, Movement{
			ProcessNumber: processNumber,
			Date:          dateField(m, dateKeys),
			Code:          stringField(m, codeKeys),
			Name:          stringField(m, nameKeys),
			Description:   stringField(m, descriptionKeys),
			Origin:        stringField(m, originKeys),
			Raw:           m,
		})
	}

	return movements
}

// ExtractList returns the parties, documents or hearings found in payload.
// The result is never nil.
func ExtractList(payload interface{}, queryType database.QueryType) []map[string]interface{} {
	out := []map[string]interface{}{}
	keys, ok := listKeys[queryType]
	if !ok {
		return out
	}
	for _, item := range findList(payload, keys, 1) {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// findList locates the first list under keys, descending into nested
// objects at most depth levels. A bare list payload is returned as is.
func findList(payload interface{}, keys []string, depth int) []interface{} {
	switch v := payload.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		for _, k := range keys {
			if list, ok := v[k].([]interface{}); ok {
				return list
			}
		}
		if depth <= 0 {
			return nil
		}
		for _, k := range keys {
			if nested, ok := v[k].(map[string]interface{}); ok {
				if list := findList(nested, keys, depth-1); list != nil {
					return list
				}
			}
		}
	}
	return nil
}

func stringField(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s := flatten(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// flatten renders scalars with cast, objects through their display key and
// lists as a "; " separated string.
func flatten(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case map[string]interface{}:
		return stringField(t, nestedKeys)
	case json.Number:
		return t.String()
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		s, err := cast.ToStringE(t)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
}

func dateField(m map[string]interface{}, keys []string) *time.Time {
	for _, k := range keys {
		if t, ok := parseDate(m[k]); ok {
			return &t
		}
	}
	return nil
}

func parseDate(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case json.Number:
		n, err := t.Int64()
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
		return epoch(n), true
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		return epoch(int64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return parsed.UTC(), true
			}
		}
		if parsed, err := cast.ToTimeInDefaultLocationE(s, time.UTC); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// epoch accepts seconds or milliseconds since the Unix epoch.
func epoch(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
