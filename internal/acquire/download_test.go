package acquire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVideoClient struct {
	video     *youtube.Video
	infoErr   error
	body      []byte
	size      int64
	streamErr error
	gotFormat *youtube.Format
}

func (f *fakeVideoClient) GetVideoContext(_ context.Context, _ string) (*youtube.Video, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.video, nil
}

func (f *fakeVideoClient) GetStreamContext(_ context.Context, _ *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	f.gotFormat = format
	if f.streamErr != nil {
		return nil, 0, f.streamErr
	}
	return io.NopCloser(bytes.NewReader(f.body)), f.size, nil
}

func TestPickAudioFormat(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000, AudioChannels: 2},
		{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, Bitrate: 4000000},
		{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
		{ItagNo: 139, MimeType: `audio/mp4; codecs="mp4a.40.5"`, Bitrate: 48000, AudioChannels: 2},
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 128000, AudioChannels: 2},
	}
	got := pickAudioFormat(formats)
	require.NotNil(t, got)
	assert.Equal(t, 140, got.ItagNo)

	muxedOnly := youtube.FormatList{formats[1], formats[0]}
	got = pickAudioFormat(muxedOnly)
	require.NotNil(t, got)
	assert.Equal(t, 18, got.ItagNo)

	assert.Nil(t, pickAudioFormat(youtube.FormatList{formats[1]}))
}

func TestFetchAudio(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 64*1024)
	client := &fakeVideoClient{
		video: &youtube.Video{ID: "dQw4w9WgXcQ", Formats: youtube.FormatList{
			{ItagNo: 140, MimeType: "audio/mp4", Bitrate: 128000, AudioChannels: 2},
		}},
		body: body,
		size: int64(len(body)),
	}
	req := Request{VideoID: "dQw4w9WgXcQ", Dest: filepath.Join(t.TempDir(), "dQw4w9WgXcQ")}

	var reported []float64
	path, err := fetchAudio(context.Background(), client, req, func(p float64) { reported = append(reported, p) })
	require.NoError(t, err)
	assert.Equal(t, req.Dest+".m4a", path)
	assert.NoFileExists(t, path+".part")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, len(body))

	require.NotEmpty(t, reported)
	for i := 1; i < len(reported); i++ {
		assert.GreaterOrEqual(t, reported[i], reported[i-1])
	}
	assert.Less(t, reported[len(reported)-1], 100.0, "100 is the chain's to report")
}

func TestFetchAudioShortReadRemovesPart(t *testing.T) {
	client := &fakeVideoClient{
		video: &youtube.Video{Formats: youtube.FormatList{{MimeType: "audio/webm", AudioChannels: 2}}},
		body:  []byte("partial"),
		size:  1000,
	}
	req := Request{Dest: filepath.Join(t.TempDir(), "vid")}
	_, err := fetchAudio(context.Background(), client, req, nil)
	require.Error(t, err)
	assert.NoFileExists(t, req.Dest+".webm.part")
	assert.NoFileExists(t, req.Dest+".webm")
}

func TestFetchAudioErrors(t *testing.T) {
	req := Request{Dest: filepath.Join(t.TempDir(), "vid")}

	_, err := fetchAudio(context.Background(), &fakeVideoClient{infoErr: errors.New("can't bypass age restriction: login required")}, req, nil)
	require.Error(t, err)
	assert.Equal(t, CauseAccessDenied, Classify(err))

	_, err = fetchAudio(context.Background(), &fakeVideoClient{video: &youtube.Video{}}, req, nil)
	assert.ErrorIs(t, err, errNoAudio)
}

func TestCredentialUsesCookieJar(t *testing.T) {
	var seen *http.Client
	c := &Credential{
		Cookies: "SID=abc",
		newClient: func(hc *http.Client) videoClient {
			seen = hc
			return &fakeVideoClient{infoErr: errors.New("stop")}
		},
	}
	assert.True(t, c.Enabled())
	_, err := c.Attempt(context.Background(), Request{Dest: filepath.Join(t.TempDir(), "vid")}, nil)
	require.Error(t, err)
	require.NotNil(t, seen)
	require.NotNil(t, seen.Jar)

	assert.False(t, (&Credential{}).Enabled())
}

func TestAnonymousTriesProfilesInOrder(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	attempt := 0
	a := &Anonymous{
		Profiles: []Profile{
			{Name: "one", Headers: func() map[string]string { return map[string]string{"User-Agent": "ua-one"} }},
			{Name: "two", Headers: func() map[string]string { return map[string]string{"User-Agent": "ua-two"} }},
		},
		newClient: func(hc *http.Client) videoClient {
			attempt++
			resp, err := hc.Get(srv.URL)
			if err == nil {
				resp.Body.Close()
			}
			if attempt == 2 {
				return &fakeVideoClient{
					video: &youtube.Video{Formats: youtube.FormatList{{MimeType: "audio/mp4", AudioChannels: 2}}},
					body:  []byte("audio"),
					size:  5,
				}
			}
			return &fakeVideoClient{infoErr: errors.New("HTTP 403")}
		},
	}
	req := Request{Dest: filepath.Join(t.TempDir(), "vid")}

	path, err := a.Attempt(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, req.Dest+".m4a", path)
	assert.Equal(t, []string{"ua-one", "ua-two"}, agents)
}
