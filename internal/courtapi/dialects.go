package courtapi

import (
	"strings"

	"github.com/JustJay7/court-sync/internal/cnj"
	"github.com/JustJay7/court-sync/internal/database"
)

type endpoint struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// dialect is one court API vendor. The set is closed: dialectFor is the only
// constructor.
type dialect interface {
	endpoint(qt database.QueryType, number string) (endpoint, bool)
	authPath() string
	testPath() string
	unwrap(payload interface{}) interface{}
}

func dialectFor(apiType database.APIType) (dialect, bool) {
	switch apiType {
	case database.APITypePJe:
		return pje{}, true
	case database.APITypeESAJ:
		return esaj{}, true
	case database.APITypeProjudi:
		return projudi{}, true
	case database.APITypeEproc:
		return eproc{}, true
	case database.APITypeDataJud:
		return datajud{}, true
	default:
		return nil, false
	}
}

// SupportedQueries lists the query types apiType can answer.
func SupportedQueries(apiType database.APIType) []database.QueryType {
	d, ok := dialectFor(apiType)
	if !ok {
		return nil
	}
	var out []database.QueryType
	for _, qt := range []database.QueryType{
		database.QueryMovements, database.QueryParties,
		database.QueryDocuments, database.QueryHearings,
	} {
		if _, ok := d.endpoint(qt, "0"); ok {
			out = append(out, qt)
		}
	}
	return out
}

func pathFor(templates map[database.QueryType]string, qt database.QueryType, number string) (endpoint, bool) {
	tpl, ok := templates[qt]
	if !ok {
		return endpoint{}, false
	}
	return endpoint{Method: "GET", Path: strings.ReplaceAll(tpl, "{n}", number)}, true
}

// pje is the PJe REST API.
type pje struct{}

var pjeEndpoints = map[database.QueryType]string{
	database.QueryMovements: "/api/v1/processos/{n}/movimentos",
	database.QueryParties:   "/api/v1/processos/{n}/partes",
	database.QueryDocuments: "/api/v1/processos/{n}/documentos",
	database.QueryHearings:  "/api/v1/processos/{n}/audiencias",
}

func (pje) endpoint(qt database.QueryType, n string) (endpoint, bool) {
	return pathFor(pjeEndpoints, qt, n)
}
func (pje) authPath() string                 { return "/api/v1/auth/token" }
func (pje) testPath() string                 { return "/api/v1/status" }
func (pje) unwrap(p interface{}) interface{} { return p }

// esaj is the e-SAJ first-instance consultation API. Hearings are not exposed.
type esaj struct{}

var esajEndpoints = map[database.QueryType]string{
	database.QueryMovements: "/cpopg/api/processos/{n}/movimentacoes",
	database.QueryParties:   "/cpopg/api/processos/{n}/partes",
	database.QueryDocuments: "/cpopg/api/processos/{n}/documentos",
}

func (esaj) endpoint(qt database.QueryType, n string) (endpoint, bool) {
	return pathFor(esajEndpoints, qt, n)
}
func (esaj) authPath() string                 { return "/cpopg/api/autenticacao" }
func (esaj) testPath() string                 { return "/cpopg/api/versao" }
func (esaj) unwrap(p interface{}) interface{} { return p }

// projudi is the Projudi REST API.
type projudi struct{}

var projudiEndpoints = map[database.QueryType]string{
	database.QueryMovements: "/projudi/api/processo/{n}/movimentacoes",
	database.QueryParties:   "/projudi/api/processo/{n}/partes",
	database.QueryDocuments: "/projudi/api/processo/{n}/arquivos",
	database.QueryHearings:  "/projudi/api/processo/{n}/audiencias",
}

func (projudi) endpoint(qt database.QueryType, n string) (endpoint, bool) {
	return pathFor(projudiEndpoints, qt, n)
}
func (projudi) authPath() string                 { return "/projudi/api/login" }
func (projudi) testPath() string                 { return "/projudi/api/status" }
func (projudi) unwrap(p interface{}) interface{} { return p }

// eproc exposes its SOAP operations as JSON over POST. Hearings are not exposed.
type eproc struct{}

func (eproc) endpoint(qt database.QueryType, n string) (endpoint, bool) {
	const consult = "/eproc/ws/json/consultarProcesso"
	switch qt {
	case database.QueryMovements:
		return endpoint{Method: "POST", Path: consult, Body: map[string]interface{}{
			"numeroProcesso": n, "incluirMovimentos": true,
		}}, true
	case database.QueryParties:
		return endpoint{Method: "POST", Path: consult, Body: map[string]interface{}{
			"numeroProcesso": n, "incluirPartes": true,
		}}, true
	case database.QueryDocuments:
		return endpoint{Method: "POST", Path: consult, Body: map[string]interface{}{
			"numeroProcesso": n, "incluirDocumentos": true,
		}}, true
	default:
		return endpoint{}, false
	}
}
func (eproc) authPath() string { return "/eproc/ws/json/autenticar" }
func (eproc) testPath() string { return "/eproc/ws/json/versao" }

// unwrap strips the SOAP envelope remnant {"return": {...}}.
func (eproc) unwrap(p interface{}) interface{} {
	if m, ok := p.(map[string]interface{}); ok {
		if inner, ok := m["return"].(map[string]interface{}); ok {
			return inner
		}
	}
	return p
}

// datajud is the CNJ public search API. It answers movements and parties
// from the same document.
type datajud struct{}

func (datajud) endpoint(qt database.QueryType, n string) (endpoint, bool) {
	switch qt {
	case database.QueryMovements, database.QueryParties:
		return endpoint{Method: "POST", Path: "/api_publica/_search", Body: map[string]interface{}{
			"query": map[string]interface{}{
				"match": map[string]interface{}{"numeroProcesso": cnj.Digits(n)},
			},
		}}, true
	default:
		return endpoint{}, false
	}
}
func (datajud) authPath() string { return "/api_publica/auth" }
func (datajud) testPath() string { return "/api_publica" }

// unwrap returns the _source of the first hit.
func (datajud) unwrap(p interface{}) interface{} {
	m, ok := p.(map[string]interface{})
	if !ok {
		return p
	}
	hits, ok := m["hits"].(map[string]interface{})
	if !ok {
		return p
	}
	list, ok := hits["hits"].([]interface{})
	if !ok || len(list) == 0 {
		return map[string]interface{}{}
	}
	first, ok := list[0].(map[string]interface{})
	if !ok {
		return p
	}
	if src, ok := first["_source"].(map[string]interface{}); ok {
		return src
	}
	return first
}
