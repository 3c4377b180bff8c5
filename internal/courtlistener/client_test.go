package courtlistener

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL+"/api/rest/v4", "secret-token", WithBackoff(time.Millisecond))
}

func TestLookup_FindsDocketAndEntries(t *testing.T) {
	var srvURL string
	srv, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret-token", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/api/rest/v4/dockets/":
			assert.Equal(t, "nysd", r.URL.Query().Get("court"))
			assert.Equal(t, "1:23-cv-01234", r.URL.Query().Get("docket_number"))
			fmt.Fprint(w, `{"count":1,"results":[{"id":77,"court_id":"nysd","docket_number":"1:23-cv-01234",
				"case_name":"Doe v. Roe","date_modified":"2024-05-01T10:00:00Z"}]}`)
		case "/api/rest/v4/docket-entries/":
			assert.Equal(t, "77", r.URL.Query().Get("docket"))
			assert.Equal(t, "-entry_number", r.URL.Query().Get("order_by"))
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprint(w, `{"next":null,"results":[
					{"entry_number":null,"date_filed":"2024-04-02","description":"Minute entry"},
					{"entry_number":1,"date_filed":"2024-04-01","description":"COMPLAINT","recap_documents":[]}]}`)
				return
			}
			fmt.Fprintf(w, `{"next":"%s/api/rest/v4/docket-entries/?docket=77&order_by=-entry_number&page=2","results":[
				{"entry_number":3,"date_filed":"2024-04-03","description":"","recap_documents":[
					{"description":"ORDER granting motion","absolute_url":"/docket/77/3/"}]}]}`, srvURL)
		default:
			http.NotFound(w, r)
		}
	})
	srvURL = srv.URL

	docket, err := client.Lookup(context.Background(), "nysd", "1:23-cv-01234")
	require.NoError(t, err)

	assert.Equal(t, 77, docket.ID)
	assert.Equal(t, "Doe v. Roe", docket.CaseName)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), docket.DateModified)

	require.Len(t, docket.Entries, 2, "unnumbered minute entries are skipped")
	assert.Equal(t, 1, docket.Entries[0].Number)
	assert.Equal(t, "COMPLAINT", docket.Entries[0].Description)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), docket.Entries[0].DateFiled)
	assert.Equal(t, 3, docket.Entries[1].Number)
	assert.Equal(t, "ORDER granting motion", docket.Entries[1].Description)
	assert.Equal(t, srv.URL+"/docket/77/3/", docket.Entries[1].DocumentURL)
}

func TestDocketEntries_LongDocketKeepsNewest(t *testing.T) {
	const total = 12
	var srvURL string
	srv, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/rest/v4/dockets/" {
			fmt.Fprint(w, `{"results":[{"id":5}]}`)
			return
		}

		// One entry per page, highest number first
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			page, _ = strconv.Atoi(p)
		}
		next := "null"
		if page < total {
			next = fmt.Sprintf(`"%s/api/rest/v4/docket-entries/?docket=5&order_by=-entry_number&page=%d"`, srvURL, page+1)
		}
		fmt.Fprintf(w, `{"next":%s,"results":[{"entry_number":%d,"description":"entry"}]}`, next, total+1-page)
	})
	srvURL = srv.URL

	entries, err := client.DocketEntries(context.Background(), "nysd", "1:20-cv-1")
	require.NoError(t, err)

	require.Len(t, entries, maxEntryPages)
	assert.Equal(t, total-maxEntryPages+1, entries[0].Number)
	assert.Equal(t, total, entries[len(entries)-1].Number, "latest filing is kept")
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Number, entries[i].Number)
	}
}

func TestLookup_NoResults(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"count":0,"results":[]}`)
	})

	_, err := client.DocketEntries(context.Background(), "cand", "3:24-cv-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchWithRetry_RecoversFromServerError(t *testing.T) {
	var calls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Path == "/api/rest/v4/dockets/" {
			fmt.Fprint(w, `{"results":[{"id":1}]}`)
			return
		}
		fmt.Fprint(w, `{"results":[]}`)
	})

	entries, err := client.DocketEntries(context.Background(), "ded", "1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchWithRetry_GivesUp(t *testing.T) {
	var calls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Lookup(context.Background(), "ded", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestFetchWithRetry_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Lookup(context.Background(), "ded", "1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLookup_MalformedJSON(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results": [`)
	})

	_, err := client.Lookup(context.Background(), "ded", "1")
	assert.Error(t, err)
}

func TestLookup_NoTokenOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Lookup(context.Background(), "ded", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}
