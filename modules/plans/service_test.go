package plans_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/studyplan/common"
	"github.com/guarzo/studyplan/common/model"
	"github.com/guarzo/studyplan/modules/api"
	"github.com/guarzo/studyplan/modules/plans"
)

// fakeBackend routes the generator endpoints to per-test handlers.
type fakeBackend struct {
	createPlan http.HandlerFunc
	document   http.HandlerFunc
	lastPlan   model.Plan
	lastDoc    model.DocumentPayload
}

func (b *fakeBackend) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(plans.CreatePlanPath, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewDecoder(req.Body).Decode(&b.lastPlan)
		b.createPlan(w, req)
	}).Methods(http.MethodPost)
	r.HandleFunc(plans.GenerateDocumentPath, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewDecoder(req.Body).Decode(&b.lastDoc)
		b.document(w, req)
	}).Methods(http.MethodPost)
	return r
}

func newService(t *testing.T, b *fakeBackend) (plans.Service, common.Store) {
	t.Helper()
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)

	store := common.NewMemoryStore()
	creds := common.NewCredentials(store)
	require.NoError(t, creds.SetAccessToken("token"))

	client := api.NewClient(srv.URL, common.NewHttpClient("test", nil, 0), creds, nil)
	return plans.NewService(client, store, nil), store
}

func validRequest() plans.PlanRequest {
	return plans.PlanRequest{
		Objective:          "Cálculo I",
		KnowledgeLevel:     "iniciante",
		Deadline:           "2026-12-01",
		StudyDays:          []string{"seg", "qua", "sex"},
		AgendaRestrictions: "sem noites",
		Difficulties:       "limites\n\n  derivadas  \n",
	}
}

func TestBuildPlan(t *testing.T) {
	plan, err := plans.BuildPlan("g-1", validRequest())
	require.NoError(t, err)

	assert.Equal(t, "g-1", plan.GoogleID)
	assert.Equal(t, "Plano de estudo - Cálculo I", plan.Request.EventName)
	assert.Equal(t, "Cálculo I", plan.Request.MainObjective)
	assert.Equal(t, "Nível atual: iniciante. Dias: seg, qua, sex. Restrições: sem noites", plan.Request.EventDescription)
	assert.Equal(t, "2026-12-01", plan.Request.EventDate)
	assert.Equal(t, []string{"limites", "derivadas"}, plan.Request.MainDifficulties)
	assert.Equal(t, 3, plan.DaysPerWeek)
	assert.Empty(t, plan.DaysWithoutStudy)

	data, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conhecimentos_esperados":[]`)
	assert.Contains(t, string(data), `"dias_sem_estudo":[]`)
}

func TestBuildPlan_Invalid(t *testing.T) {
	_, err := plans.BuildPlan("", validRequest())
	assert.ErrorIs(t, err, plans.ErrInvalidRequest)

	req := validRequest()
	req.Deadline = ""
	_, err = plans.BuildPlan("g-1", req)
	assert.ErrorIs(t, err, plans.ErrInvalidRequest)

	req = validRequest()
	req.StudyDays = nil
	_, err = plans.BuildPlan("g-1", req)
	assert.ErrorIs(t, err, plans.ErrInvalidRequest)
}

func TestCreatePlan_StoresPlanAndEvents(t *testing.T) {
	b := &fakeBackend{createPlan: func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sucesso":true,"resposta":{"plano_id":"7","eventos":[{"summary":"Estudo","start":{"date":"2026-11-02"}}]}}`))
	}}
	svc, store := newService(t, b)

	result, err := svc.CreatePlan(context.Background(), "g-1", validRequest())
	require.NoError(t, err)
	assert.Equal(t, "g-1", b.lastPlan.GoogleID)
	assert.JSONEq(t, `[{"summary":"Estudo","start":{"date":"2026-11-02"}}]`, string(result.Events))

	plan, err := svc.CurrentPlan()
	require.NoError(t, err)
	assert.Equal(t, "Cálculo I", plan.Request.MainObjective)
	assert.Equal(t, 3, plan.DaysPerWeek)

	events, err := svc.Events()
	require.NoError(t, err)
	assert.JSONEq(t, string(result.Events), string(events))

	_, ok := store.Get(plans.KeyCalendarEvents)
	assert.True(t, ok)
}

func TestCreatePlan_ArrayAnswerIsEvents(t *testing.T) {
	b := &fakeBackend{createPlan: func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sucesso":true,"resposta":[{"title":"Prova","colorId":"11"}]}`))
	}}
	svc, _ := newService(t, b)

	result, err := svc.CreatePlan(context.Background(), "g-1", validRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"Prova","colorId":"11"}]`, string(result.Events))
}

func TestCreatePlan_NoEvents(t *testing.T) {
	b := &fakeBackend{createPlan: func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sucesso":true,"resposta":"ok"}`))
	}}
	svc, _ := newService(t, b)

	result, err := svc.CreatePlan(context.Background(), "g-1", validRequest())
	require.NoError(t, err)
	assert.Nil(t, result.Events)

	events, err := svc.Events()
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestCreatePlan_Rejected(t *testing.T) {
	b := &fakeBackend{createPlan: func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sucesso":false,"erro":{"mensagem":"data inválida"}}`))
	}}
	svc, _ := newService(t, b)

	_, err := svc.CreatePlan(context.Background(), "g-1", validRequest())
	require.ErrorIs(t, err, plans.ErrPlanRejected)
	assert.Contains(t, err.Error(), "data inválida")

	_, err = svc.CurrentPlan()
	assert.ErrorIs(t, err, plans.ErrNoPlan)
}

func TestCreatePlan_HTTPError(t *testing.T) {
	b := &fakeBackend{createPlan: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}}
	svc, _ := newService(t, b)

	_, err := svc.CreatePlan(context.Background(), "g-1", validRequest())
	var httpErr *common.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "upstream down", string(httpErr.Body))
}

func TestCreatePlan_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	store := common.NewMemoryStore()
	client := api.NewClient(addr, common.NewHttpClient("test", nil, 0), common.NewCredentials(store), nil)
	svc := plans.NewService(client, store, nil)

	_, err := svc.CreatePlan(context.Background(), "g-1", validRequest())
	assert.ErrorIs(t, err, plans.ErrUnreachable)
}

func TestGenerateDocument_Binary(t *testing.T) {
	b := &fakeBackend{document: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Header().Set("Content-Disposition", `attachment; filename="plan.docx"`)
		w.Write([]byte("PK-docx"))
	}}
	svc, _ := newService(t, b)

	doc, err := svc.GenerateDocument(context.Background(), "g-1", "7")
	require.NoError(t, err)
	assert.Equal(t, "plan.docx", doc.Filename)
	assert.Equal(t, []byte("PK-docx"), doc.Data)
	assert.False(t, doc.Rendered)
	assert.Equal(t, model.DocumentPayload{GoogleID: "g-1", PlanID: "7"}, b.lastDoc)
}

func TestGenerateDocument_DefaultName(t *testing.T) {
	b := &fakeBackend{document: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("bytes"))
	}}
	svc, _ := newService(t, b)

	doc, err := svc.GenerateDocument(context.Background(), "g-1", "7")
	require.NoError(t, err)
	assert.Equal(t, "plano-7.docx", doc.Filename)
}

func TestGenerateDocument_JSONIsRendered(t *testing.T) {
	b := &fakeBackend{document: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"atividade":{"titulo":"Limites","descricao":"Revisar","conhecimentos_esperados":["epsilon","delta"]}},{"paragrafo":"<b>texto</b>"}]`))
	}}
	svc, _ := newService(t, b)

	doc, err := svc.GenerateDocument(context.Background(), "g-1", "7")
	require.NoError(t, err)
	assert.True(t, doc.Rendered)
	assert.Equal(t, "plano-7.doc", doc.Filename)
	assert.Equal(t, "application/msword", doc.ContentType)

	html := string(doc.Data)
	assert.True(t, strings.HasPrefix(html, "\ufeff"))
	assert.Contains(t, html, "1. Limites")
	assert.Contains(t, html, "<li>epsilon</li><li>delta</li>")
	assert.Contains(t, html, "2. Atividade Sem Título")
	assert.Contains(t, html, "&lt;b&gt;texto&lt;/b&gt;")
}

func TestGenerateDocument_Failure(t *testing.T) {
	b := &fakeBackend{document: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Plano não encontrado"}`))
	}}
	svc, _ := newService(t, b)

	_, err := svc.GenerateDocument(context.Background(), "g-1", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Plano não encontrado")
	var httpErr *common.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestGenerateDocument_RequiresUser(t *testing.T) {
	svc, _ := newService(t, &fakeBackend{})
	_, err := svc.GenerateDocument(context.Background(), "", "7")
	assert.ErrorIs(t, err, plans.ErrInvalidRequest)
}

func TestRenderDocument_SingleObject(t *testing.T) {
	out, err := plans.RenderDocument([]byte(`{"topico":{"titulo":"Derivadas","justificativa":"base","conhecimentos_esperados":"regra da cadeia"}}`))
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "1. Derivadas")
	assert.Contains(t, html, "<li>regra da cadeia</li>")
	assert.Contains(t, html, "Justificativa:</strong> base")

	_, err = plans.RenderDocument([]byte("not json"))
	assert.Error(t, err)
}

func TestErrorDetail(t *testing.T) {
	assert.Equal(t, "nope", plans.ErrorDetail(`{"detail":"nope"}`))
	assert.Equal(t, "bad", plans.ErrorDetail(`{"message":"bad"}`))
	assert.Equal(t, "plain text", plans.ErrorDetail("plain text"))
	assert.Equal(t, `[{"loc":"body"}]`, plans.ErrorDetail(`{"detail":[{"loc":"body"}]}`))
}
