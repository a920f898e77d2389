package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/client/actions"
	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/dmitrijs2005/ioukeeper/internal/client/query"
	"github.com/dmitrijs2005/ioukeeper/internal/client/services"
	"github.com/dmitrijs2005/ioukeeper/internal/client/session"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ------------ helpers ------------

func unsignedToken(claims map[string]any) string {
	enc := base64.RawURLEncoding
	b, _ := json.Marshal(claims)
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString(b) + ".x"
}

func credFor(t *testing.T, email, username string) *session.Credential {
	t.Helper()
	c, err := session.ParseCredential(unsignedToken(map[string]any{
		"exp":                4102444800,
		"email":              email,
		"preferred_username": username,
		"organization":       "acme",
		"realm_access":       map[string]any{"roles": []string{"user"}},
	}), "")
	require.NoError(t, err)
	return c
}

// tokenServer is a token endpoint issuing five-minute tokens for alice@x.
type tokenServer struct {
	now           atomic.Int64
	refreshes     atomic.Int32
	rejectRefresh atomic.Bool
}

func (s *tokenServer) Now() time.Time { return time.Unix(s.now.Load(), 0) }

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("grant_type") == "refresh_token" {
		s.refreshes.Add(1)
		if s.rejectRefresh.Load() {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token is not active"}`))
			return
		}
	}
	tok := unsignedToken(map[string]any{
		"exp":   s.Now().Add(5 * time.Minute).Unix(),
		"email": "alice@x",
	})
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"access_token":%q,"refresh_token":"r","expires_in":300}`, tok)
}

// newSessionApp wires an App to a real session manager and auth service.
func newSessionApp(t *testing.T) (*App, *session.Manager, *tokenServer) {
	t.Helper()
	ts := &tokenServer{}
	ts.now.Store(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).Unix())
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	sessions := session.NewManager(session.Options{
		IdentityURL: srv.URL,
		Realm:       "test",
		ClientID:    "engine-client",
		HTTPClient:  srv.Client(),
		Now:         ts.Now,
	})
	a, _ := newTestApp(t, &fakeAuth{}, &fakeLedger{}, "")
	a.authService = services.NewAuthService(sessions, nil, nil, nil)
	return a, sessions, ts
}

type fakeAuth struct {
	cred *session.Credential

	loginUser string
	loginPass string
	loginErr  error

	restoreCred *session.Credential
	logoutCalls int
	last        string
	trace       *[]string
}

func (f *fakeAuth) Login(_ context.Context, user string, pass []byte) (*session.Credential, error) {
	f.loginUser, f.loginPass = user, string(pass)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.cred, nil
}
func (f *fakeAuth) Restore(context.Context) (*session.Credential, error) {
	if f.trace != nil {
		*f.trace = append(*f.trace, "restore")
	}
	return f.restoreCred, nil
}
func (f *fakeAuth) WhoAmI(context.Context) (*session.Credential, error) {
	if f.cred == nil {
		return nil, common.ErrNoSession
	}
	return f.cred, nil
}
func (f *fakeAuth) Logout(context.Context) error {
	f.logoutCalls++
	f.cred = nil
	return nil
}
func (f *fakeAuth) LastUsername(context.Context) string { return f.last }

type fakeLedger struct {
	views      []models.View
	refreshErr error
	refreshes  int
	cached     bool

	paid     []string
	forgiven []string
	created  []string
	err      error
	trace    *[]string
}

func (f *fakeLedger) Refresh(context.Context) ([]models.View, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.views, nil
}
func (f *fakeLedger) Views() []models.View { return f.views }
func (f *fakeLedger) Snapshot() services.Snapshot {
	return services.Snapshot{Views: f.views, Cached: f.cached}
}
func (f *fakeLedger) Search(set *query.Set) []models.View { return query.Filter(f.views, set) }
func (f *fakeLedger) Suggest() []string                   { return query.Suggest(f.views) }
func (f *fakeLedger) Pay(_ context.Context, id string, amount decimal.Decimal) error {
	f.paid = append(f.paid, id+"="+amount.String())
	return f.err
}
func (f *fakeLedger) Forgive(_ context.Context, id string) error {
	f.forgiven = append(f.forgiven, id)
	return f.err
}
func (f *fakeLedger) Create(_ context.Context, payee string, amount decimal.Decimal, desc string) (models.Record, error) {
	f.created = append(f.created, payee+"|"+amount.String()+"|"+desc)
	if f.err != nil {
		return models.Record{}, f.err
	}
	return models.Record{ID: "iou-9"}, nil
}
func (f *fakeLedger) LoadCached(context.Context) ([]models.View, error) {
	if f.trace != nil {
		*f.trace = append(*f.trace, "load cached")
	}
	return nil, nil
}
func (f *fakeLedger) Rebind(context.Context, string) {}
func (f *fakeLedger) Reset(context.Context) error    { return nil }

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sampleViews() []models.View {
	return []models.View{
		{ID: "r1", Issuer: "alice@x", Payee: "bob@x", IssuerEmails: []string{"alice@x"}, PayeeEmails: []string{"bob@x"},
			State: models.StateUnpaid, Role: models.RoleIssuer, CanPay: true,
			Amount: amount("150"), AmountOwed: amount("62.5"), Reconciled: true},
		{ID: "r2", Issuer: "carol@x", Payee: "alice@x", IssuerEmails: []string{"carol@x"}, PayeeEmails: []string{"alice@x"},
			State: models.StatePaid, Role: models.RolePayee,
			Amount: amount("20"), AmountOwed: amount("20")},
	}
}

func newTestApp(t *testing.T, auth *fakeAuth, ledger *fakeLedger, input string) (*App, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	return &App{
		authService:   auth,
		ledgerService: ledger,
		logger:        logging.Discard(),
		filters:       query.NewSet(),
		reader:        bufio.NewReader(strings.NewReader(input)),
		out:           &out,
	}, &out
}

func stubInputs(t *testing.T, username string, password []byte) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) { return username, nil }
	getPassword = func(_ io.Writer) ([]byte, error) { return password, nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

// ------------ tests ------------

func TestIsLoggedIn(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &fakeAuth{}, &fakeLedger{}, "")
	assert.False(t, a.isLoggedIn(ctx))

	a, _ = newTestApp(t, &fakeAuth{cred: credFor(t, "a@x", "a")}, &fakeLedger{}, "")
	assert.True(t, a.isLoggedIn(ctx))
}

func TestIsLoggedIn_ExpiredAccessTokenIsRenewed(t *testing.T) {
	ctx := context.Background()
	a, sessions, ts := newSessionApp(t)

	_, err := a.authService.Login(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
	a.userName = "alice@x"
	require.True(t, a.isLoggedIn(ctx))

	ts.now.Add(int64((6 * time.Minute).Seconds()))
	require.Nil(t, sessions.Current())

	assert.True(t, a.isLoggedIn(ctx))
	assert.Equal(t, int32(1), ts.refreshes.Load())
	assert.NotNil(t, sessions.Current())
	assert.Equal(t, "alice@x", a.userName)

	lines := capturePrintln(t)
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(strings.NewReader("suggest\n")))
	assert.NotContains(t, strings.Join(*lines, "\n"), "Not logged in")
}

func TestIsLoggedIn_RejectedRefreshLogsOut(t *testing.T) {
	ctx := context.Background()
	a, _, ts := newSessionApp(t)

	_, err := a.authService.Login(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
	a.userName = "alice@x"

	ts.rejectRefresh.Store(true)
	ts.now.Add(int64((6 * time.Minute).Seconds()))

	assert.False(t, a.isLoggedIn(ctx))
	assert.Empty(t, a.userName)

	lines := capturePrintln(t)
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(strings.NewReader("suggest\n")))
	assert.Contains(t, *lines, "Not logged in. Type 'login' first.")
}

func TestRoot_RestoresSessionBeforeLoadingCache(t *testing.T) {
	var trace []string
	auth := &fakeAuth{trace: &trace}
	ledger := &fakeLedger{trace: &trace}
	stubInputs(t, "", nil)
	a, _ := newTestApp(t, auth, ledger, "")

	a.Root(context.Background())
	require.GreaterOrEqual(t, len(trace), 2)
	assert.Equal(t, []string{"restore", "load cached"}, trace[:2])
}

func TestGetStatus(t *testing.T) {
	a, _ := newTestApp(t, &fakeAuth{}, &fakeLedger{}, "")
	assert.Equal(t, "", a.getStatus())

	a.userName = "alice@x"
	assert.Equal(t, "(alice@x)", a.getStatus())

	a.ledgerService = &fakeLedger{cached: true}
	assert.Equal(t, "(alice@x, cached)", a.getStatus())
}

func TestLogin_SuccessRefreshes(t *testing.T) {
	stubInputs(t, "alice", []byte("pw"))
	auth := &fakeAuth{cred: credFor(t, "alice@x", "alice")}
	ledger := &fakeLedger{views: sampleViews()}
	a, out := newTestApp(t, auth, ledger, "")

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, "alice", auth.loginUser)
	assert.Equal(t, "pw", auth.loginPass)
	assert.Equal(t, "alice@x", a.userName)
	assert.Equal(t, 1, ledger.refreshes)
	assert.Contains(t, out.String(), "Logged in as alice@x")
	assert.Contains(t, out.String(), "2 IOU(s) loaded")
}

func TestLogin_EmptyUsernameUsesLast(t *testing.T) {
	stubInputs(t, "", []byte("pw"))
	auth := &fakeAuth{cred: credFor(t, "", "bob"), last: "bob"}
	a, _ := newTestApp(t, auth, &fakeLedger{}, "")

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, "bob", auth.loginUser)
	assert.Equal(t, "bob", a.userName)
}

func TestLogin_Failure(t *testing.T) {
	stubInputs(t, "alice", []byte("bad"))
	auth := &fakeAuth{loginErr: common.ErrAuthFailure}
	ledger := &fakeLedger{}
	a, out := newTestApp(t, auth, ledger, "")

	require.ErrorIs(t, a.Login(context.Background()), common.ErrAuthFailure)
	assert.Contains(t, out.String(), "Login failed")
	assert.Equal(t, 0, ledger.refreshes)
	assert.Empty(t, a.userName)
}

func TestLogin_FailureClearsPreviousUser(t *testing.T) {
	stubInputs(t, "mallory", []byte("bad"))
	a, _ := newTestApp(t, &fakeAuth{loginErr: common.ErrAuthFailure}, &fakeLedger{}, "")
	a.userName = "alice@x"

	require.Error(t, a.Login(context.Background()))
	assert.Empty(t, a.userName)
}

func TestLogout(t *testing.T) {
	auth := &fakeAuth{cred: credFor(t, "a@x", "a")}
	a, out := newTestApp(t, auth, &fakeLedger{}, "")
	a.userName = "a@x"
	a.filters.Add("state:paid")

	require.NoError(t, a.Logout(context.Background()))
	assert.Equal(t, 1, auth.logoutCalls)
	assert.Empty(t, a.userName)
	assert.Equal(t, 0, a.filters.Len())
	assert.Contains(t, out.String(), "Logged out")
}

func TestWhoAmI(t *testing.T) {
	a, out := newTestApp(t, &fakeAuth{cred: credFor(t, "alice@x", "alice")}, &fakeLedger{}, "")

	require.NoError(t, a.WhoAmI(context.Background()))
	s := out.String()
	assert.Contains(t, s, "Email:        alice@x")
	assert.Contains(t, s, "Username:     alice")
	assert.Contains(t, s, "Name:         -")
	assert.Contains(t, s, "Organization: acme")
	assert.Contains(t, s, "Roles:        user")
	assert.Contains(t, s, "Expires:")
}

func TestRefresh_Unreachable(t *testing.T) {
	ledger := &fakeLedger{refreshErr: common.ErrUnreachable}
	a, out := newTestApp(t, &fakeAuth{}, ledger, "")

	require.ErrorIs(t, a.Refresh(context.Background()), common.ErrUnreachable)
	assert.Contains(t, out.String(), "Service unreachable")
}

func TestRefresh_SessionExpiredClearsPrompt(t *testing.T) {
	ledger := &fakeLedger{refreshErr: common.ErrRefreshFailure}
	a, out := newTestApp(t, &fakeAuth{}, ledger, "")
	a.userName = "alice@x"

	require.Error(t, a.Refresh(context.Background()))
	assert.Contains(t, out.String(), "Session expired")
	assert.Empty(t, a.userName)
}

func TestList_RendersTable(t *testing.T) {
	a, out := newTestApp(t, &fakeAuth{}, &fakeLedger{views: sampleViews()}, "")

	require.NoError(t, a.List(context.Background(), nil))
	s := out.String()
	assert.Contains(t, s, "ID")
	assert.Contains(t, s, "OWED")
	assert.Contains(t, s, "$150.00")
	assert.Contains(t, s, "$62.50")
	assert.Contains(t, s, "unpaid")
	assert.Contains(t, s, "pay")
	assert.Contains(t, s, "r2")
}

func TestList_TermsReplaceFilters(t *testing.T) {
	a, out := newTestApp(t, &fakeAuth{}, &fakeLedger{views: sampleViews()}, "")
	a.filters.Add("state:paid")

	require.NoError(t, a.List(context.Background(), []string{"issuer:alice", "state:unpaid"}))
	assert.Equal(t, []string{"issuer:alice", "state:unpaid"}, a.filters.Strings())
	s := out.String()
	assert.Contains(t, s, "Filters: issuer:alice state:unpaid")
	assert.Contains(t, s, "r1")
	assert.NotContains(t, s, "r2")
}

func TestList_NoMatches(t *testing.T) {
	a, out := newTestApp(t, &fakeAuth{}, &fakeLedger{views: sampleViews()}, "")

	require.NoError(t, a.List(context.Background(), []string{"colour:red"}))
	assert.Contains(t, out.String(), "none")
}

func TestFilter(t *testing.T) {
	a, out := newTestApp(t, &fakeAuth{}, &fakeLedger{views: sampleViews()}, "")
	ctx := context.Background()

	require.NoError(t, a.Filter(ctx, nil))
	assert.Contains(t, out.String(), "No filters")

	require.NoError(t, a.Filter(ctx, []string{"add", "state:paid", "STATE:paid"}))
	assert.Equal(t, []string{"state:paid"}, a.filters.Strings())

	require.NoError(t, a.Filter(ctx, []string{"rm", "payee:x"}))
	assert.Contains(t, out.String(), "Not an active filter: payee:x")

	require.NoError(t, a.Filter(ctx, []string{"clear"}))
	assert.Equal(t, 0, a.filters.Len())

	require.NoError(t, a.Filter(ctx, []string{"bogus"}))
	assert.Contains(t, out.String(), "Usage: filter")
}

func TestSuggest(t *testing.T) {
	a, out := newTestApp(t, &fakeAuth{}, &fakeLedger{views: sampleViews()}, "")
	require.NoError(t, a.Suggest(context.Background()))
	assert.Contains(t, out.String(), "owed:62.50\n")

	a, out = newTestApp(t, &fakeAuth{}, &fakeLedger{}, "")
	require.NoError(t, a.Suggest(context.Background()))
	assert.Contains(t, out.String(), "Nothing to suggest")
}

func TestPay(t *testing.T) {
	ledger := &fakeLedger{}
	a, out := newTestApp(t, &fakeAuth{}, ledger, "")
	ctx := context.Background()

	require.NoError(t, a.Pay(ctx, []string{"r1", "$50"}))
	assert.Equal(t, []string{"r1=50"}, ledger.paid)
	assert.Contains(t, out.String(), "Paid $50.00 on r1")

	require.Error(t, a.Pay(ctx, []string{"r1"}))
	require.Error(t, a.Pay(ctx, []string{"r1", "lots"}))
	assert.Len(t, ledger.paid, 1)
}

func TestPay_Rejected(t *testing.T) {
	ledger := &fakeLedger{err: &actions.Error{Action: "pay", StatusCode: 400, Message: "too much"}}
	a, out := newTestApp(t, &fakeAuth{}, ledger, "")

	require.ErrorIs(t, a.Pay(context.Background(), []string{"r1", "500"}), common.ErrAction)
	assert.Contains(t, out.String(), "Rejected by the engine: pay rejected (400): too much")
}

func TestForgive(t *testing.T) {
	ledger := &fakeLedger{}
	a, out := newTestApp(t, &fakeAuth{}, ledger, "")

	require.NoError(t, a.Forgive(context.Background(), []string{"r2"}))
	assert.Equal(t, []string{"r2"}, ledger.forgiven)
	assert.Contains(t, out.String(), "Forgave r2")

	ledger.err = common.ErrNotPermitted
	require.ErrorIs(t, a.Forgive(context.Background(), []string{"r1"}), common.ErrNotPermitted)
	assert.Contains(t, out.String(), "not available")

	require.Error(t, a.Forgive(context.Background(), nil))
}

func TestCreate(t *testing.T) {
	ledger := &fakeLedger{}
	a, out := newTestApp(t, &fakeAuth{}, ledger, "")

	require.NoError(t, a.Create(context.Background(), []string{"bob@x", "12.50", "pizza", "night"}))
	assert.Equal(t, []string{"bob@x|12.5|pizza night"}, ledger.created)
	assert.Contains(t, out.String(), "Created iou-9")

	require.Error(t, a.Create(context.Background(), []string{"bob@x"}))
	require.Error(t, a.Create(context.Background(), []string{"bob@x", "x"}))
	assert.Len(t, ledger.created, 1)
}

func TestUserMessage_Unknown(t *testing.T) {
	assert.Equal(t, "Error: "+assert.AnError.Error(), userMessage(assert.AnError))
}
