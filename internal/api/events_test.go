package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/domain"
	"github.com/Priya8975/traffic-tracker/internal/fraud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type ingestFixture struct {
	store     *memStore
	geo       *staticGeo
	publisher *recordingPublisher
	enqueuer  *recordingEnqueuer
	handler   *EventHandler
}

func newIngestFixture() *ingestFixture {
	store := &memStore{}
	geo := &staticGeo{data: domain.GeoData{Country: domain.StringPtr("Germany"), City: domain.StringPtr("Berlin")}}
	pub := &recordingPublisher{}
	enq := &recordingEnqueuer{}
	return &ingestFixture{
		store:     store,
		geo:       geo,
		publisher: pub,
		enqueuer:  enq,
		handler:   NewEventHandler(store, geo, newTestValidator(store), pub, enq, "Blocked_Invalid_Traffic_IPs", testLogger()),
	}
}

func (f *ingestFixture) post(t *testing.T, body, ip, ua string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rr := httptest.NewRecorder()
	f.handler.Create(rr, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestCreateEvent_ValidClick(t *testing.T) {
	f := newIngestFixture()

	rr, resp := f.post(t, `{"url_accessed":"https://shop.example.com/landing","channel":"google_ads","device_type":"desktop"}`, "203.0.113.7", browserUA)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Event recorded successfully", resp["message"])
	assert.Equal(t, true, resp["is_valid"])
	assert.Nil(t, resp["reason"])
	assert.EqualValues(t, 1, resp["event_id"])

	require.Len(t, f.store.events, 1)
	stored := f.store.events[0]
	assert.Equal(t, "203.0.113.7", stored.IPAddress)
	assert.Equal(t, "Germany", *stored.Country)
	assert.Equal(t, "google_ads", *stored.Channel)
	assert.Contains(t, *stored.RawRequest, `"device_type":"desktop"`)
	assert.Equal(t, 1, f.publisher.count())
	assert.Empty(t, f.enqueuer.snapshot(), "valid clicks are never excluded")
}

func TestCreateEvent_GooglebotIsInvalid(t *testing.T) {
	f := newIngestFixture()

	rr, resp := f.post(t, `{"url_accessed":"https://shop.example.com/"}`, "66.249.66.1",
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, false, resp["is_valid"])
	reason, _ := resp["reason"].(string)
	assert.Contains(t, reason, "Suspicious User Agent")
	assert.Contains(t, reason, "bot")
}

func TestCreateEvent_SixthClickInWindowIsInvalid(t *testing.T) {
	f := newIngestFixture()

	for i := 0; i < 5; i++ {
		_, resp := f.post(t, `{"channel":"google_ads"}`, "198.51.100.20", browserUA)
		require.Equal(t, true, resp["is_valid"], "click %d", i+1)
	}

	_, resp := f.post(t, `{"channel":"google_ads"}`, "198.51.100.20", browserUA)
	assert.Equal(t, false, resp["is_valid"])
	reason, _ := resp["reason"].(string)
	assert.Contains(t, reason, "High IP Frequency")
	assert.Contains(t, reason, "6")

	_, other := f.post(t, `{"channel":"google_ads"}`, "198.51.100.21", browserUA)
	assert.Equal(t, true, other["is_valid"], "other addresses are unaffected")
}

func TestCreateEvent_ReasonsJoinedInCheckOrder(t *testing.T) {
	f := newIngestFixture()
	for i := 0; i < 5; i++ {
		f.post(t, `{"channel":"x"}`, "198.51.100.30", "curl/8.0")
	}

	_, resp := f.post(t, `{"channel":"x"}`, "198.51.100.30", "curl/8.0")
	assert.Equal(t, "Suspicious User Agent: contains 'curl', High IP Frequency: 6 clicks in 10s", resp["reason"])
}

func TestCreateEvent_NoData(t *testing.T) {
	f := newIngestFixture()

	for _, body := range []string{"", "{}", "null", "   "} {
		rr, resp := f.post(t, body, "203.0.113.7", browserUA)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
		assert.Equal(t, "No data provided", resp["error"])
	}
	assert.Empty(t, f.store.events)
}

func TestCreateEvent_MalformedBody(t *testing.T) {
	f := newIngestFixture()

	for _, body := range []string{"{not json", `["a"]`, `{"channel": 12}`} {
		rr, resp := f.post(t, body, "203.0.113.7", browserUA)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
		assert.Equal(t, "invalid request body", resp["error"])
	}
	assert.Empty(t, f.store.events)
}

func TestCreateEvent_ValidationFailure(t *testing.T) {
	f := newIngestFixture()

	rr, resp := f.post(t, `{"device_type":"`+strings.Repeat("x", 51)+`"}`, "203.0.113.7", browserUA)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_failed", resp["error"])
	assert.Contains(t, resp["fields"], "devicetype")
	assert.Empty(t, f.store.events)
}

func TestCreateEvent_RefererDefaults(t *testing.T) {
	f := newIngestFixture()
	req := httptest.NewRequest(http.MethodPost, "/api/event", strings.NewReader(`{"channel":"email"}`))
	req.Header.Set("Referer", "https://news.example.org/article")
	req.Header.Set("User-Agent", browserUA)
	req.RemoteAddr = "192.0.2.44:51234"
	rr := httptest.NewRecorder()

	f.handler.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	stored := f.store.events[0]
	assert.Equal(t, "192.0.2.44", stored.IPAddress, "remote address is used without X-Forwarded-For")
	assert.Equal(t, "https://news.example.org/article", *stored.URLAccessed)
	assert.Equal(t, "https://news.example.org/article", *stored.RefererURL)
}

func TestCreateEvent_StoreFailure(t *testing.T) {
	f := newIngestFixture()
	f.store.err = errStoreDown

	rr, resp := f.post(t, `{"channel":"google_ads"}`, "203.0.113.7", browserUA)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to record event", resp["error"])
	assert.Equal(t, errStoreDown.Error(), resp["details"])
	assert.Zero(t, f.publisher.count(), "nothing is broadcast for unsaved events")
}

func TestCreateEvent_InvalidClickQueuesExclusion(t *testing.T) {
	f := newIngestFixture()

	_, resp := f.post(t, `{"google_campaign_id":"987654"}`, "203.0.113.9", "python-requests/2.31")
	require.Equal(t, false, resp["is_valid"])

	require.Eventually(t, func() bool { return len(f.enqueuer.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	job := f.enqueuer.snapshot()[0]
	assert.Equal(t, "203.0.113.9", job.IPAddress)
	assert.Equal(t, "987654", job.CampaignID)
	assert.Equal(t, "Blocked_Invalid_Traffic_IPs", job.ListName)
	assert.EqualValues(t, 1, job.EventID)
}

func TestCreateEvent_ExclusionSkipped(t *testing.T) {
	f := newIngestFixture()

	// No campaign id.
	f.post(t, `{"channel":"x"}`, "203.0.113.9", "python-requests/2.31")
	// Local address.
	f.post(t, `{"google_campaign_id":"987654"}`, "127.0.0.1", "python-requests/2.31")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.enqueuer.snapshot())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"first forwarded hop", "203.0.113.7, 10.0.0.1", "10.0.0.2:80", "203.0.113.7"},
		{"single forwarded", "198.51.100.1", "10.0.0.2:80", "198.51.100.1"},
		{"remote with port", "", "192.0.2.1:5555", "192.0.2.1"},
		{"remote ipv6", "", "[::1]:5555", "::1"},
		{"remote without port", "", "192.0.2.1", "192.0.2.1"},
		{"forwarded ipv6", "2001:db8::1", "10.0.0.2:80", "2001:db8::1"},
		{"forwarded garbage", strings.Repeat("x", 60), "192.0.2.1:5555", "192.0.2.1"},
		{"forwarded path", "../admin/secret?token=1#, 10.0.0.1", "192.0.2.1:5555", "192.0.2.1"},
		{"forwarded with port", "203.0.113.7:8080", "192.0.2.1:5555", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestCreateEvent_SlowGeoDoesNotShrinkFrequencyWindow(t *testing.T) {
	cfg := fraud.DefaultConfig()
	cfg.FrequencyLimit = 2
	cfg.FrequencyWindow = time.Second
	store := &memStore{}
	v, err := fraud.NewValidator(cfg, store, testLogger())
	require.NoError(t, err)

	geo := &slowGeo{staticGeo: staticGeo{data: domain.GeoData{Country: domain.StringPtr("United States")}}, delay: 400 * time.Millisecond}
	f := &ingestFixture{store: store, publisher: &recordingPublisher{}, enqueuer: &recordingEnqueuer{}}
	f.handler = NewEventHandler(store, geo, v, f.publisher, f.enqueuer, "Blocked_Invalid_Traffic_IPs", testLogger())

	var last map[string]interface{}
	for i := 0; i < 3; i++ {
		before := time.Now().UTC()
		rr, resp := f.post(t, `{"channel":"google_ads"}`, "8.8.8.8", browserUA)
		require.Equal(t, http.StatusCreated, rr.Code)

		stored := store.events[len(store.events)-1]
		assert.False(t, stored.Timestamp.Before(before.Add(geo.delay)), "timestamp must be taken after the geo lookup")
		last = resp
	}

	assert.Equal(t, false, last["is_valid"])
	assert.Equal(t, "High IP Frequency: 3 clicks in 1s", last["reason"])
}

func TestCreateEvent_UnparsableForwardedIPFallsBackToRemote(t *testing.T) {
	f := newIngestFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/event", strings.NewReader(`{"channel":"google_ads"}`))
	req.RemoteAddr = "198.51.100.23:41000"
	req.Header.Set("X-Forwarded-For", strings.Repeat("a", 60))
	req.Header.Set("User-Agent", browserUA)
	rr := httptest.NewRecorder()
	f.handler.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, f.store.events, 1)
	assert.Equal(t, "198.51.100.23", f.store.events[0].IPAddress)
}
