package conventionRoutes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"pfmp/config"
	authController "pfmp/controllers/auth"
	conventionController "pfmp/controllers/convention"
	verifyController "pfmp/controllers/verify"
	"pfmp/database/dbtest"
	"pfmp/middleware"
	"pfmp/models"
	authRoutes "pfmp/routers/authRoutes"
	conventionRoutes "pfmp/routers/conventionRoutes"
	verifyRoutes "pfmp/routers/verifyRoutes"
	"pfmp/services/audit"
	"pfmp/services/convention"
	"pfmp/services/otp"
	"pfmp/services/ratelimit"
	"pfmp/services/verification"
	"pfmp/signature"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	config.AppConfig = &config.Config{JWTKey: "test-jwt-key"}
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, string, string, string) error { return nil }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	app   *fiber.App
	db    *gorm.DB
	token string
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := dbtest.New(t)
	signer, err := signature.NewSigner("test-secret", true)
	require.NoError(t, err)

	auditLog := audit.NewLog(db)
	gate := otp.NewGate(db, nopMailer{}, auditLog, 10*time.Minute)
	conventions := convention.NewService(db, gate, auditLog, signer, nopMailer{}, convention.Options{
		PublicBaseURL:        "https://pfmp.example.fr",
		ReminderInitialDelay: 5 * time.Second,
		ReminderInterval:     48 * time.Hour,
	})
	limiter := ratelimit.NewLimiter(map[string]ratelimit.Policy{
		ratelimit.ActionOTPVerify: {Max: 50, Window: 15 * time.Minute},
	}, ratelimit.NewMemoryCounter())

	app := fiber.New()
	authRoutes.SetupAuthRoutes(app, authController.NewHandler(gate, conventions), limiter)
	conventionRoutes.SetupConventionRoutes(app, conventionController.NewHandler(conventions), limiter)
	verifyRoutes.SetupVerifyRoutes(app, verifyController.NewHandler(verification.NewVerifier(signer), conventions))

	token, err := middleware.GenerateJWT("tea-1", "marie@lycee.fr", middleware.RoleTeacher)
	require.NoError(t, err)
	return &server{app: app, db: db, token: token}
}

func (s *server) do(t *testing.T, method, target string, body any, auth bool) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func (s *server) lastCode(t *testing.T, email string) string {
	t.Helper()
	var rec models.OTP
	require.NoError(t, s.db.Where("email = ?", email).Order("id desc").First(&rec).Error)
	return rec.Code
}

func createBody() fiber.Map {
	return fiber.Map{
		"student":        fiber.Map{"id": "stu-1", "name": "Jean Dupont", "email": "jean@eleve.fr"},
		"teacher":        fiber.Map{"id": "tea-1", "name": "Marie Curie", "email": "marie@lycee.fr"},
		"companyName":    "ACME SARL",
		"companyRep":     fiber.Map{"name": "Paul Martin", "email": "paul@acme.fr"},
		"tutor":          fiber.Map{"name": "Luc Petit", "email": "luc@acme.fr"},
		"head":           fiber.Map{"name": "Anne Proviseur", "email": "anne@lycee.fr"},
		"schoolAddress":  "1 rue de l'École, Paris",
		"companyAddress": "10 avenue de Lyon, Lyon",
		"startDate":      "2025-09-01",
		"endDate":        "2025-10-01",
	}
}

func (s *server) create(t *testing.T) string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/conventions", createBody(), true)
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	var conv models.Convention
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	return conv.ID
}

func TestCreateRequiresTokenAndValidBody(t *testing.T) {
	s := newServer(t)

	status, _ := s.do(t, http.MethodPost, "/conventions", createBody(), false)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	bad := createBody()
	bad["startDate"] = "01/09/2025"
	status, env := s.do(t, http.MethodPost, "/conventions", bad, true)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Contains(t, string(env.Data), "startDate")
}

func TestSignOverHTTP(t *testing.T) {
	s := newServer(t)
	id := s.create(t)

	status, env := s.do(t, http.MethodPost, "/auth/otp/send", fiber.Map{
		"email": "jean@eleve.fr", "purpose": "convention-signature", "conventionId": id, "step": "student",
	}, false)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	code := s.lastCode(t, "jean@eleve.fr")

	wrong := "0000"
	if code == wrong {
		wrong = "0001"
	}
	status, env = s.do(t, http.MethodPost, "/conventions/"+id+"/sign", fiber.Map{
		"step": "student", "email": "jean@eleve.fr", "code": wrong,
	}, false)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.False(t, env.Status)

	status, env = s.do(t, http.MethodPost, "/conventions/"+id+"/sign", fiber.Map{
		"step": "student", "email": "jean@eleve.fr", "code": code,
	}, false)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var res struct {
		Convention    models.Convention `json:"convention"`
		SignatureCode string            `json:"signatureCode"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.StatusSubmitted, res.Convention.Status)
	assert.Regexp(t, `^[A-Z]{8}[0-9]{5}$`, res.SignatureCode)

	// replaying the consumed code fails
	status, _ = s.do(t, http.MethodPost, "/conventions/"+id+"/sign", fiber.Map{
		"step": "student", "email": "jean@eleve.fr", "code": code,
	}, false)
	assert.Equal(t, fiber.StatusConflict, status)

	// the timeline exposes signature codes, staff only
	status, _ = s.do(t, http.MethodGet, "/conventions/"+id+"/timeline", nil, false)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodGet, "/conventions/"+id+"/timeline", nil, true)
	require.Equal(t, fiber.StatusOK, status)
	var timeline []convention.TimelineEntry
	require.NoError(t, json.Unmarshal(env.Data, &timeline))
	require.Len(t, timeline, 6)
	assert.Equal(t, convention.StepCompleted, timeline[0].State)
	assert.Equal(t, res.SignatureCode, timeline[0].Code)

	status, env = s.do(t, http.MethodGet, "/verify/code/"+res.SignatureCode, nil, false)
	assert.Equal(t, fiber.StatusOK, status, env.Message)
}

func TestVerificationLinkRoundTrip(t *testing.T) {
	s := newServer(t)
	id := s.create(t)

	// a draft has nothing to certify yet
	status, _ := s.do(t, http.MethodPost, "/conventions/"+id+"/verification-link", nil, true)
	assert.Equal(t, fiber.StatusConflict, status)

	require.NoError(t, s.db.Model(&models.Convention{}).Where("id = ?", id).Update("status", models.StatusSubmitted).Error)
	status, env := s.do(t, http.MethodPost, "/conventions/"+id+"/verification-link", nil, true)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var out struct {
		Link string `json:"link"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	u, err := url.Parse(out.Link)
	require.NoError(t, err)

	status, env = s.do(t, http.MethodGet, "/verify?"+u.RawQuery, nil, false)
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, env.Status)
	var result verification.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, verification.OutcomeValid, result.Outcome)
	assert.Equal(t, "Jean Dupont", result.Summary.Student)

	q := u.Query()
	sig := q.Get("sig")
	flipped := "a"
	if sig[0] == 'a' {
		flipped = "b"
	}
	q.Set("sig", flipped+sig[1:])
	status, env = s.do(t, http.MethodGet, "/verify?"+q.Encode(), nil, false)
	assert.Equal(t, fiber.StatusOK, status)
	assert.False(t, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.NotEqual(t, verification.OutcomeValid, result.Outcome)
}

func TestMinorFlagNeedsStaffRole(t *testing.T) {
	s := newServer(t)
	id := s.create(t)

	status, env := s.do(t, http.MethodPatch, "/conventions/"+id+"/minor", fiber.Map{"est_mineur": true}, true)
	assert.Equal(t, fiber.StatusBadRequest, status, env.Message)

	status, _ = s.do(t, http.MethodPatch, "/conventions/"+id+"/minor", fiber.Map{}, true)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	student, err := middleware.GenerateJWT("stu-1", "jean@eleve.fr", middleware.RoleStudent)
	require.NoError(t, err)
	s.token = student
	status, _ = s.do(t, http.MethodPatch, "/conventions/"+id+"/minor", fiber.Map{"est_mineur": false}, true)
	assert.Equal(t, fiber.StatusForbidden, status)
}
