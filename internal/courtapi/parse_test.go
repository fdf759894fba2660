package courtapi

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, raw string) interface{} {
	t.Helper()
	payload, err := decode([]byte(raw))
	require.NoError(t, err)
	return payload
}

func TestParseMovementsListKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"movimentos", `{"movimentos":[{"nome":"A"}]}`},
		{"movimentacoes", `{"movimentacoes":[{"nome":"A"}]}`},
		{"eventos", `{"eventos":[{"nome":"A"}]}`},
		{"andamentos", `{"andamentos":[{"nome":"A"}]}`},
		{"nested data", `{"data":{"movements":[{"nome":"A"}]}}`},
		{"bare list", `[{"nome":"A"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			movements := ParseMovements(mustDecode(t, tt.raw), "123")
			require.Len(t, movements, 1)
			assert.Equal(t, "A", movements[0].Name)
			assert.Equal(t, "123", movements[0].ProcessNumber)
		})
	}
}

func TestParseMovementsLenientFields(t *testing.T) {
	raw := `{"movimentos":[{
		"dataHora": "2024-03-01T10:15:00.000Z",
		"codigo": 26,
		"nome": "Distribuído",
		"complementosTabelados": [{"nome":"tipo"}, {"descricao":"sorteio"}],
		"orgaoJulgador": {"codigo": 1, "nome": "1ª Vara Cível"}
	}, {
		"data": "05/02/2024 14:30",
		"codigoMovimento": "60",
		"titulo": "Expedição de documento",
		"texto": " Mandado ",
		"vara": "2ª Vara"
	}, {
		"foo": "bar"
	}, "not an object"]}`

	movements := ParseMovements(mustDecode(t, raw), "p")
	require.Len(t, movements, 3)

	first := movements[0]
	require.NotNil(t, first.Date)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), *first.Date)
	assert.Equal(t, "26", first.Code)
	assert.Equal(t, "Distribuído", first.Name)
	assert.Equal(t, "tipo; sorteio", first.Description)
	assert.Equal(t, "1ª Vara Cível", first.Origin)

	second := movements[1]
	require.NotNil(t, second.Date)
	assert.Equal(t, time.Date(2024, 2, 5, 14, 30, 0, 0, time.UTC), *second.Date)
	assert.Equal(t, "60", second.Code)
	assert.Equal(t, "Expedição de documento", second.Name)
	assert.Equal(t, "Mandado", second.Description)
	assert.Equal(t, "2ª Vara", second.Origin)

	// missing fields are empty, never an error
	third := movements[2]
	assert.Nil(t, third.Date)
	assert.Empty(t, third.Code)
	assert.Empty(t, third.Name)
	assert.Equal(t, "bar", third.Raw["foo"])
}

func TestParseMovementsEmpty(t *testing.T) {
	assert.Empty(t, ParseMovements(mustDecode(t, `{}`), "p"))
	assert.Empty(t, ParseMovements(mustDecode(t, `{"movimentos":"none"}`), "p"))
	assert.Empty(t, ParseMovements(nil, "p"))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   interface{}
		ok   bool
	}{
		{"iso date", "2024-01-31", true},
		{"brazilian date", "31/01/2024", true},
		{"compact", "20240131000000", true},
		{"epoch seconds", json.Number("1706659200"), true},
		{"epoch millis", json.Number("1706659200000"), true},
		{"blank", "  ", false},
		{"garbage", "yesterday", false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestExtractList(t *testing.T) {
	payload := mustDecode(t, `{"partes":[{"nome":"Fulano","polo":"ativo"}],"arquivos":[{"id":1},{"id":2}]}`)

	parties := ExtractList(payload, database.QueryParties)
	require.Len(t, parties, 1)
	assert.Equal(t, "Fulano", parties[0]["nome"])

	assert.Len(t, ExtractList(payload, database.QueryDocuments), 2)

	hearings := ExtractList(payload, database.QueryHearings)
	assert.NotNil(t, hearings)
	assert.Empty(t, hearings)

	assert.Empty(t, ExtractList(payload, database.QueryMovements))
}

func TestDecodeKeepsNumbersExact(t *testing.T) {
	payload, err := decode([]byte(`{"id": 12345678901234567890}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), payload.(map[string]interface{})["id"])

	payload, err = decode(bytes.TrimSpace([]byte("  ")))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, payload)
}
