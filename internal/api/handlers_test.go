package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bothive/bothive/internal/authcode"
	"github.com/bothive/bothive/internal/log"
	"github.com/bothive/bothive/internal/logsink"
	"github.com/bothive/bothive/internal/registry"
	"github.com/bothive/bothive/internal/sandbox"
	"github.com/bothive/bothive/internal/session"
	"github.com/bothive/bothive/internal/storage"
	"github.com/bothive/bothive/internal/supervisor"
)

type testEnv struct {
	handler http.Handler
	broker  *authcode.Broker
	dataDir string
	token   string
}

// newTestEnv wires the whole stack against a temp database and returns an
// authenticated session token for chat-1.
func newTestEnv(t *testing.T, freeQuota int) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dataDir := t.TempDir()
	reg := registry.New(db)
	files := sandbox.NewStore()
	sink := logsink.NewStore(db)
	sup := supervisor.New(files, reg, sink, supervisor.WithInterpreter("javascript", "sh"))
	t.Cleanup(sup.Shutdown)
	broker := authcode.New(db, 0)
	sessions := session.NewManager(db)

	quota := func(string) int { return freeQuota }
	server := New(Config{Listen: "127.0.0.1:0", DataDir: dataDir},
		reg, sup, files, broker, sessions, sink, quota, log.WithComponent("api-test"))

	env := &testEnv{handler: server.Handler(), broker: broker, dataDir: dataDir}

	code, err := broker.Issue(ctx, authcode.Identity{ChatID: "chat-1", DisplayName: "Ada"})
	require.NoError(t, err)

	resp := env.do(t, "POST", "/auth/redeem", "", jsonBody(t, RedeemRequest{Code: code}), "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var redeemed RedeemResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &redeemed))
	env.token = redeemed.Token
	return env
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func (e *testEnv) do(t *testing.T, method, path, token string, body *bytes.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createBot(t *testing.T, name string) BotResponse {
	t.Helper()
	resp := e.do(t, "POST", "/bots", e.token,
		jsonBody(t, CreateBotRequest{Name: name, Language: "javascript"}), "application/json")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var bot BotResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &bot))
	return bot
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	resp := env.do(t, "GET", "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRedeemInvalidCode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	resp := env.do(t, "POST", "/auth/redeem", "", jsonBody(t, RedeemRequest{Code: "ZZZZZZ"}), "application/json")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRequiresSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)

	resp := env.do(t, "GET", "/bots", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.do(t, "GET", "/bots", "not-a-session", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateBotCreatesSandbox(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "hello")

	info, err := os.Stat(filepath.Join(env.dataDir, bot.ID))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "stopped", bot.Status)
	assert.False(t, bot.Running)
}

func TestQuotaConflictLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 1)
	env.createBot(t, "only")

	resp := env.do(t, "POST", "/bots", env.token,
		jsonBody(t, CreateBotRequest{Name: "excess", Language: "javascript"}), "application/json")
	assert.Equal(t, http.StatusConflict, resp.Code)

	// No second sandbox directory and no second record.
	entries, err := os.ReadDir(env.dataDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	list := env.do(t, "GET", "/bots", env.token, nil, "")
	require.Equal(t, http.StatusOK, list.Code)
	var bots []BotResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &bots))
	assert.Len(t, bots, 1)
}

func TestFileRoundtripAndListing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "files")
	base := "/bots/" + bot.ID

	put := env.do(t, "PUT", base+"/files/content?path=b.txt", env.token,
		bytes.NewReader([]byte("content")), "text/plain")
	require.Equal(t, http.StatusNoContent, put.Code, put.Body.String())

	put = env.do(t, "PUT", base+"/files/content?path=a/nested.txt", env.token,
		bytes.NewReader([]byte("deep")), "text/plain")
	require.Equal(t, http.StatusNoContent, put.Code)

	get := env.do(t, "GET", base+"/files/content?path=b.txt", env.token, nil, "")
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "content", get.Body.String())

	list := env.do(t, "GET", base+"/files", env.token, nil, "")
	require.Equal(t, http.StatusOK, list.Code)
	var entries []sandbox.Entry
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "b.txt", entries[1].Name)

	del := env.do(t, "DELETE", base+"/files?path=b.txt", env.token, nil, "")
	assert.Equal(t, http.StatusNoContent, del.Code)

	del = env.do(t, "DELETE", base+"/files?path=b.txt", env.token, nil, "")
	assert.Equal(t, http.StatusNotFound, del.Code)
}

func TestTraversalPathsRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "escape")
	base := "/bots/" + bot.ID

	put := env.do(t, "PUT", base+"/files/content?path="+escapeQuery("../../secret"), env.token,
		bytes.NewReader([]byte("leak")), "text/plain")
	assert.Equal(t, http.StatusBadRequest, put.Code)

	get := env.do(t, "GET", base+"/files/content?path="+escapeQuery("../../secret"), env.token, nil, "")
	assert.Equal(t, http.StatusBadRequest, get.Code)

	// Nothing escaped the sandbox.
	_, err := os.Stat(filepath.Join(env.dataDir, "..", "secret"))
	assert.True(t, os.IsNotExist(err))
}

func escapeQuery(p string) string {
	return strings.ReplaceAll(p, "/", "%2F")
}

func TestWriteFileRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "bulky")
	base := "/bots/" + bot.ID

	oversized := make([]byte, maxUploadBytes+1)
	put := env.do(t, "PUT", base+"/files/content?path=big.bin", env.token,
		bytes.NewReader(oversized), "application/octet-stream")
	assert.Equal(t, http.StatusRequestEntityTooLarge, put.Code)

	// Nothing, not even a truncated file, may have been written.
	_, err := os.Stat(filepath.Join(env.dataDir, bot.ID, "big.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestArchiveUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "zipped")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("archive", "bot.zip")
	require.NoError(t, err)

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	f, err := zw.Create("index.js")
	require.NoError(t, err)
	_, err = f.Write([]byte("console.log('from zip')"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	_, err = part.Write(zipBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp := env.do(t, "POST", "/bots/"+bot.ID+"/archive", env.token,
		bytes.NewReader(buf.Bytes()), mw.FormDataContentType())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var upload UploadResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &upload))
	assert.Len(t, upload.Digest, 64)

	content, err := os.ReadFile(filepath.Join(env.dataDir, bot.ID, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log('from zip')", string(content))

	get := env.do(t, "GET", "/bots/"+bot.ID, env.token, nil, "")
	require.Equal(t, http.StatusOK, get.Code)
	var got BotResponse
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &got))
	assert.Equal(t, upload.Digest, got.ArchiveDigest)
}

func TestStartStopAndLogs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "runner")
	base := "/bots/" + bot.ID

	put := env.do(t, "PUT", base+"/files/content?path=index.js", env.token,
		bytes.NewReader([]byte("echo api-marker\n")), "text/plain")
	require.Equal(t, http.StatusNoContent, put.Code)

	start := env.do(t, "POST", base+"/start", env.token, nil, "")
	require.Equal(t, http.StatusOK, start.Code, start.Body.String())

	require.Eventually(t, func() bool {
		get := env.do(t, "GET", base, env.token, nil, "")
		if get.Code != http.StatusOK {
			return false
		}
		var got BotResponse
		if err := json.Unmarshal(get.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Status == "stopped" && !got.Running
	}, 5*time.Second, 20*time.Millisecond, "bot should run to completion")

	require.Eventually(t, func() bool {
		logsResp := env.do(t, "GET", base+"/logs", env.token, nil, "")
		if logsResp.Code != http.StatusOK {
			return false
		}
		var entries []logsink.Entry
		if err := json.Unmarshal(logsResp.Body.Bytes(), &entries); err != nil {
			return false
		}
		for _, e := range entries {
			if e.Stream == "stdout" && strings.Contains(e.Chunk, "api-marker") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond, "logs should contain the marker")

	// Stopping an already-exited bot is a no-op success.
	stop := env.do(t, "POST", base+"/stop", env.token, nil, "")
	assert.Equal(t, http.StatusOK, stop.Code)
}

func TestStartWithoutEntryFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "empty")

	start := env.do(t, "POST", "/bots/"+bot.ID+"/start", env.token, nil, "")
	assert.Equal(t, http.StatusNotFound, start.Code)
}

func TestDeleteBotRemovesSandboxAndRecord(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "doomed")

	del := env.do(t, "DELETE", "/bots/"+bot.ID, env.token, nil, "")
	require.Equal(t, http.StatusNoContent, del.Code)

	_, err := os.Stat(filepath.Join(env.dataDir, bot.ID))
	assert.True(t, os.IsNotExist(err))

	get := env.do(t, "GET", "/bots/"+bot.ID, env.token, nil, "")
	assert.Equal(t, http.StatusNotFound, get.Code)
}

func TestBotsAreTenantScoped(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	bot := env.createBot(t, "mine")

	// Second tenant cannot see the first tenant's bot.
	code, err := env.broker.Issue(context.Background(), authcode.Identity{ChatID: "chat-2", DisplayName: "Bob"})
	require.NoError(t, err)
	resp := env.do(t, "POST", "/auth/redeem", "", jsonBody(t, RedeemRequest{Code: code}), "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	var redeemed RedeemResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &redeemed))

	get := env.do(t, "GET", "/bots/"+bot.ID, redeemed.Token, nil, "")
	assert.Equal(t, http.StatusNotFound, get.Code)
}
