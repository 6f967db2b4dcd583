package client

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/riddler/internal/auth"
	"github.com/mesh-intelligence/riddler/internal/logging"
	"github.com/mesh-intelligence/riddler/internal/server"
	"github.com/mesh-intelligence/riddler/internal/sqlstore"
	"github.com/mesh-intelligence/riddler/pkg/api"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// RemoteSuite runs the client against a live server backed by SQLite.
type RemoteSuite struct {
	suite.Suite
	db     *sql.DB
	srv    *httptest.Server
	client *Client
	ctx    context.Context
}

func TestRemoteSuite(t *testing.T) {
	suite.Run(t, new(RemoteSuite))
}

func (s *RemoteSuite) SetupTest() {
	s.ctx = context.Background()

	path := filepath.Join(s.T().TempDir(), "riddler.db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	s.Require().NoError(err)
	db.SetMaxOpenConns(1)
	s.Require().NoError(sqlstore.Migrate(s.ctx, db, sqlstore.DialectSQLite))
	s.db = db

	handler := server.New(server.Config{
		Registry: sqlstore.New(db, sqlstore.DialectSQLite),
		Logger:   logging.NewTestLogger(s.T()),
		Version:  "test",
		Backend:  types.BackendSQLite,
	}).Handler()
	s.srv = httptest.NewServer(handler)

	s.client, err = New(s.srv.URL)
	s.Require().NoError(err)
}

func (s *RemoteSuite) TearDownTest() {
	s.client.Close()
	s.srv.Close()
	s.db.Close()
}

func (s *RemoteSuite) dictionary() types.DictionaryDescriptor {
	return types.DictionaryDescriptor{Metadata: types.Metadata{
		{Key: "language", Value: "en"},
		{Key: "dialect", Value: "gb"},
	}}
}

func (s *RemoteSuite) TestEcho() {
	for _, msg := range []string{"", "hello", "línea\nnueva"} {
		got, err := s.client.Echo(s.ctx, msg)
		s.Require().NoError(err)
		s.Equal(msg, got)
	}
}

func (s *RemoteSuite) TestStatus() {
	status, err := s.client.Status(s.ctx)
	s.Require().NoError(err)
	s.Equal("riddler", status.Name)
	s.Equal(types.BackendSQLite, status.Backend)
}

func (s *RemoteSuite) TestDictionaryRoundTrip() {
	id, err := s.client.CreateDictionary(s.ctx, s.dictionary())
	s.Require().NoError(err)

	got, err := s.client.GetDictionary(s.ctx, s.dictionary())
	s.Require().NoError(err)
	s.Equal(id, got)

	desc, err := s.client.GetDictionaryMetadata(s.ctx, id)
	s.Require().NoError(err)
	s.True(desc.Metadata.Equal(s.dictionary().Metadata))

	_, err = s.client.CreateDictionary(s.ctx, s.dictionary())
	s.ErrorIs(err, types.ErrAlreadyExists)

	ids, err := s.client.FindDictionaries(s.ctx, types.Metadata{{Key: "dialect", Value: "gb"}})
	s.Require().NoError(err)
	s.Equal([]string{id}, ids)

	dicts, err := s.client.ListDictionaries(s.ctx)
	s.Require().NoError(err)
	s.Len(dicts, 1)
}

func (s *RemoteSuite) TestUnknownIdentityIsRemoteFault() {
	_, err := s.client.GetDictionaryMetadata(s.ctx, "no-such-id")
	var fault *types.Fault
	s.Require().ErrorAs(err, &fault)
	s.Equal(types.CodeNotFound, fault.Code)
	s.ErrorIs(err, types.ErrNotFound)

	_, err = s.client.GetDictionary(s.ctx, s.dictionary())
	s.ErrorIs(err, types.ErrNotFound)

	_, err = s.client.GetCorpusDescriptor(s.ctx, "no-such-id")
	s.ErrorIs(err, types.ErrNotFound)

	_, err = s.client.CreateCorpus(s.ctx, "no-such-id", types.CorpusDescriptor{})
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *RemoteSuite) TestCorpusRoundTrip() {
	dictID, err := s.client.CreateDictionary(s.ctx, s.dictionary())
	s.Require().NoError(err)

	desc := types.CorpusDescriptor{
		Metadata:    types.Metadata{{Key: "name", Value: "read speech"}},
		CollectDate: time.Date(2023, 11, 5, 9, 30, 0, 0, time.UTC),
	}
	id, err := s.client.CreateCorpus(s.ctx, dictID, desc)
	s.Require().NoError(err)

	got, err := s.client.GetCorpusDescriptor(s.ctx, id)
	s.Require().NoError(err)
	s.True(got.Equal(desc), "got %+v", got)

	corpora, err := s.client.ListCorpora(s.ctx, dictID)
	s.Require().NoError(err)
	s.Require().Len(corpora, 1)
	s.Equal(id, corpora[0].CorpusID)
}

func (s *RemoteSuite) TestPronunciations() {
	dictID, err := s.client.CreateDictionary(s.ctx, s.dictionary())
	s.Require().NoError(err)

	_, err = s.client.AddPronunciations(s.ctx, dictID, "Either", []string{"iy dh er"})
	s.Require().NoError(err)
	_, err = s.client.AddPronunciations(s.ctx, dictID, "either", []string{"ay dh er"})
	s.Require().NoError(err)

	found, err := s.client.HasPronunciation(s.ctx, dictID, "EITHER")
	s.Require().NoError(err)
	s.True(found)

	p, err := s.client.Pronunciation(s.ctx, dictID, "either")
	s.Require().NoError(err)
	s.Equal([]string{"ay dh er", "iy dh er"}, p.Variants)

	found, err = s.client.HasPronunciation(s.ctx, dictID, "neither")
	s.Require().NoError(err)
	s.False(found)

	_, err = s.client.Pronunciation(s.ctx, dictID, "neither")
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *RemoteSuite) TestItems() {
	dictID, err := s.client.CreateDictionary(s.ctx, s.dictionary())
	s.Require().NoError(err)
	_, err = s.client.AddPronunciations(s.ctx, dictID, "yes", []string{"y eh s"})
	s.Require().NoError(err)
	corpusID, err := s.client.CreateCorpus(s.ctx, dictID, types.CorpusDescriptor{})
	s.Require().NoError(err)

	empty, err := s.client.CreateItem(s.ctx, corpusID)
	s.Require().NoError(err)
	s.Len(empty.Audio, 1)
	s.Len(empty.Text, 1)

	audio := types.AudioDescriptor{
		SamplesPerSecond: 1000,
		ChannelCount:     1,
		Encoding:         types.EncodingPCMS8,
		Data:             make([]byte, 2000),
	}
	withAudio, err := s.client.CreateItemWithAudio(s.ctx, corpusID, audio)
	s.Require().NoError(err)
	s.Require().Len(withAudio.Audio, 1)
	s.Equal(audio.Data, withAudio.Audio[0].Data)

	_, err = s.client.CreateItemWithText(s.ctx, corpusID, types.TextDescriptor{Words: []string{"yes", "no"}})
	s.ErrorIs(err, types.ErrUnknownWord)

	both, err := s.client.CreateItemWithAudioAndText(s.ctx, corpusID, audio, types.TextDescriptor{Words: []string{"yes"}})
	s.Require().NoError(err)
	s.Require().Len(both.AudioRegions, 1)
	s.NotNil(both.AudioRegions[0].TextRegionID)

	got, err := s.client.GetItem(s.ctx, both.ItemID)
	s.Require().NoError(err)
	s.Equal(both.ItemID, got.ItemID)

	tr, err := s.client.CreateTextRegion(s.ctx, both.ItemID, types.TextSpan{StartIndex: 0, EndIndex: 1})
	s.Require().NoError(err)

	ar, err := s.client.CreateAudioRegion(s.ctx, both.ItemID, types.AudioSpan{BeginTime: 0, EndTime: 1000})
	s.Require().NoError(err)
	s.Nil(ar.TextRegionID)
	s.Require().NoError(s.client.AssociateAudioRegionWithText(s.ctx, ar.RegionID, tr.RegionID))

	linked, err := s.client.CreateAudioRegionWithText(s.ctx, both.ItemID, tr.RegionID, types.AudioSpan{BeginTime: 1000, EndTime: 2000})
	s.Require().NoError(err)
	s.Require().NotNil(linked.TextRegionID)
	s.Equal(tr.RegionID, *linked.TextRegionID)

	_, err = s.client.CreateAudioRegion(s.ctx, both.ItemID, types.AudioSpan{BeginTime: 0, EndTime: 5000})
	s.ErrorIs(err, types.ErrInvalidRegion)
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "   ", "ftp://example.com", "127.0.0.1:8420"} {
		_, err := New(u)
		assert.Error(t, err, u)
	}
	c, err := New("http://127.0.0.1:8420/")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8420", c.baseURL)
}

func TestTokenIsSent(t *testing.T) {
	a, err := auth.New([]byte("secret"))
	require.NoError(t, err)
	token, err := a.Issue("client-test", time.Minute)
	require.NoError(t, err)

	handler, requests := httphelpers.RecordingHandler(
		httphelpers.HandlerWithResponse(http.StatusOK, jsonHeaders(), []byte(`{"message":"hi"}`)),
	)
	httphelpers.WithServer(handler, func(srv *httptest.Server) {
		c, err := New(srv.URL, WithToken(token), WithUserAgent("riddler-test"))
		require.NoError(t, err)
		defer c.Close()

		got, err := c.Echo(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "hi", got)

		info := <-requests
		assert.Equal(t, "Bearer "+token, info.Request.Header.Get("Authorization"))
		assert.Equal(t, "riddler-test", info.Request.Header.Get("User-Agent"))
		assert.Equal(t, api.PathEcho, info.Request.URL.Path)
		assert.JSONEq(t, `{"message":"hi"}`, string(info.Body))
	})
}

func TestFaultDecoding(t *testing.T) {
	tests := []struct {
		name    string
		handler http.Handler
		code    string
		target  error
	}{
		{
			name:    "fault body",
			handler: httphelpers.HandlerWithResponse(http.StatusConflict, jsonHeaders(), []byte(`{"fault":{"code":"already_exists","message":"dup"}}`)),
			code:    types.CodeAlreadyExists,
			target:  types.ErrAlreadyExists,
		},
		{
			name:    "plain 404",
			handler: httphelpers.HandlerWithStatus(http.StatusNotFound),
			code:    types.CodeNotFound,
			target:  types.ErrNotFound,
		},
		{
			name:    "gateway error",
			handler: httphelpers.HandlerWithResponse(http.StatusBadGateway, nil, []byte("upstream down")),
			code:    types.CodeUnavailable,
			target:  types.ErrRegistryDetached,
		},
		{
			name:    "rate limited",
			handler: httphelpers.HandlerWithStatus(http.StatusTooManyRequests),
			code:    types.CodeRateLimited,
			target:  types.ErrRateLimited,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httphelpers.WithServer(tt.handler, func(srv *httptest.Server) {
				c, err := New(srv.URL)
				require.NoError(t, err)
				defer c.Close()

				_, err = c.GetDictionaryMetadata(context.Background(), "x")
				var fault *types.Fault
				require.ErrorAs(t, err, &fault)
				assert.Equal(t, tt.code, fault.Code)
				assert.ErrorIs(t, err, tt.target)
			})
		})
	}
}

func TestMalformedSuccessBody(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(http.StatusOK, jsonHeaders(), []byte("{oops"))
	httphelpers.WithServer(handler, func(srv *httptest.Server) {
		c, err := New(srv.URL)
		require.NoError(t, err)
		defer c.Close()

		_, err = c.Echo(context.Background(), "x")
		assert.ErrorIs(t, err, ErrBadResponse)
	})
}

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = io.WriteString(w, `{"message":"late"}`)
	})
	httphelpers.WithServer(slow, func(srv *httptest.Server) {
		c, err := New(srv.URL, WithTimeout(50*time.Millisecond))
		require.NoError(t, err)
		defer c.Close()

		_, err = c.Echo(context.Background(), "x")
		require.Error(t, err)
		var fault *types.Fault
		assert.False(t, errors.As(err, &fault), "transport errors are not faults")
	})
}

func TestTimeoutLeavesSharedClientAlone(t *testing.T) {
	tests := []struct {
		name string
		opts func(hc *http.Client) []Option
	}{
		{"timeout after client", func(hc *http.Client) []Option {
			return []Option{WithHTTPClient(hc), WithTimeout(50 * time.Millisecond)}
		}},
		{"timeout before client", func(hc *http.Client) []Option {
			return []Option{WithTimeout(50 * time.Millisecond), WithHTTPClient(hc)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shared := &http.Client{Timeout: time.Minute}

			c, err := New("http://127.0.0.1:8420", tt.opts(shared)...)
			require.NoError(t, err)
			defer c.Close()

			assert.Equal(t, time.Minute, shared.Timeout)
			assert.Equal(t, 50*time.Millisecond, c.httpClient.Timeout)
			assert.NotSame(t, shared, c.httpClient)
		})
	}

	t.Run("no timeout keeps the given client", func(t *testing.T) {
		shared := &http.Client{Timeout: time.Minute}
		c, err := New("http://127.0.0.1:8420", WithHTTPClient(shared))
		require.NoError(t, err)
		assert.Same(t, shared, c.httpClient)
	})
}

func jsonHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}
