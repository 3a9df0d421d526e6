package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podbrief/podbrief/internal/config"
)

func TestTranscriptionClient_Transcribe(t *testing.T) {
	var gotModel, gotFormat, gotTemp, gotLang string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		gotTemp = r.FormValue("temperature")
		gotLang = r.FormValue("language")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		file.Close()

		json.NewEncoder(w).Encode(Transcription{
			Text:     "hello world",
			Language: "en",
			Duration: 1.5,
			Segments: []Segment{{ID: 0, Start: 0, End: 1.5, Text: "hello world"}},
		})
	}))
	defer server.Close()

	client := NewTranscriptionClient(config.ProvidersConfig{
		TranscriptionURL:   server.URL,
		TranscriptionModel: "whisper-1",
		APIKey:             "test-key",
	})

	result, err := client.Transcribe(context.Background(), []byte("audio-bytes"), "episode.mp3", "en")
	require.NoError(t, err)

	assert.Equal(t, "hello world", result.Text)
	assert.Len(t, result.Segments, 1)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "verbose_json", gotFormat)
	assert.Equal(t, "0", gotTemp)
	assert.Equal(t, "en", gotLang)
}

func TestTranscriptionClient_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid audio"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewTranscriptionClient(config.ProvidersConfig{TranscriptionURL: server.URL})

	_, err := client.Transcribe(context.Background(), []byte("bad"), "episode.mp3", "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestGenerationClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"showNotes": "notes"}`}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewGenerationClient(config.ProvidersConfig{
		GenerationURL:   server.URL,
		GenerationModel: "gpt-4o-mini",
	})

	text, err := client.Complete(context.Background(), "summarize this")
	require.NoError(t, err)
	assert.Equal(t, `{"showNotes": "notes"}`, text)
}

func TestGenerationClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewGenerationClient(config.ProvidersConfig{GenerationURL: server.URL})

	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
