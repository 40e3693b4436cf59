package model

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON is the single place JSON payloads are decoded into typed values.
func UnmarshalJSON(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// ----------------------------------------------------------------------
// Client envelope
// ----------------------------------------------------------------------

// ResponseMode selects how a response body is interpreted.
type ResponseMode int

const (
	// ModeStructured reads the body as text and parses it as JSON.
	ModeStructured ResponseMode = iota
	// ModeBinary keeps a successful body as an opaque blob.
	ModeBinary
)

func (m ResponseMode) String() string {
	switch m {
	case ModeBinary:
		return "binary"
	default:
		return "structured"
	}
}

// PayloadKind tags which field of a Payload is populated.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadJSON
	PayloadFallback
	PayloadBlob
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadJSON:
		return "json"
	case PayloadFallback:
		return "fallback"
	case PayloadBlob:
		return "blob"
	default:
		return "none"
	}
}

// Payload is the decoded body of a response. Exactly one representation is
// set, as indicated by Kind.
type Payload struct {
	Kind PayloadKind

	// JSON holds the raw document when Kind is PayloadJSON.
	JSON json.RawMessage

	// Message holds the raw body text when Kind is PayloadFallback.
	Message string

	// Blob and ContentType are set when Kind is PayloadBlob.
	Blob        []byte
	ContentType string
}

// JSONPayload wraps an already validated JSON document.
func JSONPayload(raw []byte) Payload {
	return Payload{Kind: PayloadJSON, JSON: json.RawMessage(raw)}
}

// FallbackPayload wraps text that could not be parsed as JSON.
func FallbackPayload(message string) Payload {
	return Payload{Kind: PayloadFallback, Message: message}
}

// BlobPayload wraps an opaque body.
func BlobPayload(data []byte, contentType string) Payload {
	return Payload{Kind: PayloadBlob, Blob: data, ContentType: contentType}
}

// Decode unmarshals a JSON payload into out. A fallback payload decodes as
// {"message": <text>} so callers can treat both shapes uniformly.
func (p Payload) Decode(out interface{}) error {
	switch p.Kind {
	case PayloadJSON:
		return UnmarshalJSON(p.JSON, out)
	case PayloadFallback:
		data, err := json.Marshal(map[string]string{"message": p.Message})
		if err != nil {
			return err
		}
		return UnmarshalJSON(data, out)
	default:
		return fmt.Errorf("payload of kind %s cannot be decoded as JSON", p.Kind)
	}
}

// Text returns the best textual rendering of the payload.
func (p Payload) Text() string {
	switch p.Kind {
	case PayloadJSON:
		return string(p.JSON)
	case PayloadFallback:
		return p.Message
	case PayloadBlob:
		return string(p.Blob)
	default:
		return ""
	}
}

// Envelope is the uniform result of every API call.
type Envelope struct {
	OK     bool
	Status int
	Data   Payload

	// Filename is only set for successful binary responses that carried a
	// Content-Disposition attachment header.
	Filename string
}

// Decode unmarshals the envelope payload into out.
func (e Envelope) Decode(out interface{}) error {
	return e.Data.Decode(out)
}

// Message returns the fallback message, or the "message" field of a JSON
// object payload. Empty when neither exists.
func (e Envelope) Message() string {
	switch e.Data.Kind {
	case PayloadFallback:
		return e.Data.Message
	case PayloadJSON:
		var m struct {
			Message string `json:"message"`
		}
		if err := UnmarshalJSON(e.Data.JSON, &m); err == nil {
			return m.Message
		}
	}
	return ""
}

// ----------------------------------------------------------------------
// Session
// ----------------------------------------------------------------------

// User is the profile stored after a successful login.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// ----------------------------------------------------------------------
// Study plan backend wire types
// ----------------------------------------------------------------------

// UserRequest is the plan description sent to the generator.
type UserRequest struct {
	EventName         string   `json:"nome_evento"`
	MainObjective     string   `json:"objetivo_principal"`
	EventDescription  string   `json:"descricao_evento"`
	EventDate         string   `json:"data_evento"`
	ExpectedKnowledge []string `json:"conhecimentos_esperados"`
	PriorKnowledge    []string `json:"conhecimentos_previos_sobre_objetivo"`
	MainDifficulties  []string `json:"principais_dificuldades_sobre_objetivo"`
	DaysPerWeek       int      `json:"dias_por_semana,omitempty"`
	DaysWithoutStudy  []string `json:"dias_sem_estudo,omitempty"`
}

// Plan is the body of POST /criar_plano/. The same document is kept as the
// active plan once the generator accepts it.
type Plan struct {
	GoogleID         string      `json:"google_id"`
	Request          UserRequest `json:"requisicao_usuario"`
	DaysPerWeek      int         `json:"dias_por_semana"`
	DaysWithoutStudy []string    `json:"dias_sem_estudo"`
}

// BackendError is the error object the generator returns on rejection.
type BackendError struct {
	Message string `json:"mensagem"`
}

// CreatePlanResponse is the body returned by POST /criar_plano/.
type CreatePlanResponse struct {
	Success bool            `json:"sucesso"`
	Answer  json.RawMessage `json:"resposta"`
	Error   *BackendError   `json:"erro,omitempty"`
}

// DocumentPayload is the body of POST /gerar_documentos/.
type DocumentPayload struct {
	GoogleID string `json:"google_id"`
	PlanID   string `json:"plano_ensino_id"`
}
