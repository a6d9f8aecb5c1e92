package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/audio"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/models"
)

// maxRequestBody caps JSON bodies; narration PCM for a long story is a few MB of base64.
const maxRequestBody = 32 << 20

// PostOnly rejects every method but POST with 405 and an Allow header.
func PostOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		next(w, r)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeGenerationError answers 400 for invalid input and 500 with prefix + details otherwise.
func writeGenerationError(w http.ResponseWriter, prefix string, err error) {
	var vErr *catalog.ValidationError
	if errors.As(err, &vErr) {
		writeJSONError(w, http.StatusBadRequest, vErr.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, prefix+" Details: "+err.Error())
}

// Story handles POST /api/story
func (h *Handler) Story(w http.ResponseWriter, r *http.Request) {
	var req models.StoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	story, err := h.service.GenerateStory(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("topic", req.Topic).Msg("Failed to generate story")
		writeGenerationError(w, "Failed to generate story text.", err)
		return
	}

	writeJSON(w, http.StatusOK, models.StoryResponse{Story: story})
}

// Voice handles POST /api/voice (and the /api/audio alias)
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	var req models.VoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := h.service.GenerateVoice(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("language", req.Language).Msg("Failed to generate audio")
		writeGenerationError(w, "Failed to generate audio.", err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// Image handles POST /api/image
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	var req models.ImageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := h.service.GenerateImage(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate image")
		writeGenerationError(w, "Failed to generate image.", err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// Download handles POST /api/download: narration PCM in, WAV attachment out.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req models.DownloadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	raw, err := audio.DecodeBase64(req.Base64Audio)
	if err == nil {
		var wav []byte
		if wav, err = audio.EncodePCMToWAV(raw, audio.PCMSampleRate); err == nil {
			w.Header().Set("Content-Type", "audio/wav")
			w.Header().Set("Content-Disposition", attachment(audio.DownloadFilename(req.Title)))
			w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
			w.WriteHeader(http.StatusOK)
			w.Write(wav)
			return
		}
	}

	var dErr *audio.DecodeError
	if errors.As(err, &dErr) {
		log.Warn().Err(err).Str("title", req.Title).Msg("Undecodable narration audio")
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	log.Error().Err(err).Msg("Failed to encode WAV")
	writeJSONError(w, http.StatusInternalServerError, "failed to encode audio")
}

// attachment quotes or RFC 2231 encodes filename as needed.
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

// Options handles GET /api/options
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog)
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
