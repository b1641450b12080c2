package httpadapter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

type turnRequestBody struct {
	Text    string `json:"text"`
	Command string `json:"command"`
	Images  []struct {
		Filename   string `json:"filename"`
		DataBase64 string `json:"data_base64"`
	} `json:"images"`
}

// decodeTurnRequest accepts either a JSON body or a multipart form with text,
// command and image fields.
func (rt *Router) decodeTurnRequest(r *http.Request) (domain.TurnRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return rt.decodeMultipartTurn(r)
	}

	var body turnRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if isMaxBytesError(err) {
			return domain.TurnRequest{}, err
		}
		return domain.TurnRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode turn", fmt.Errorf("invalid json: %w", err))
	}

	command, err := parseCommand(body.Command)
	if err != nil {
		return domain.TurnRequest{}, err
	}
	req := domain.TurnRequest{Text: body.Text, Command: command}
	for i, img := range body.Images {
		data, err := base64.StdEncoding.DecodeString(stripDataURIPrefix(img.DataBase64))
		if err != nil {
			return domain.TurnRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode turn", fmt.Errorf("images[%d]: invalid base64: %w", i, err))
		}
		req.Images = append(req.Images, domain.ImageUpload{Filename: img.Filename, Data: data})
	}
	return req, nil
}

func (rt *Router) decodeMultipartTurn(r *http.Request) (domain.TurnRequest, error) {
	if err := r.ParseMultipartForm(rt.maxMultipartBytes); err != nil {
		if isMaxBytesError(err) {
			return domain.TurnRequest{}, err
		}
		return domain.TurnRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode turn", fmt.Errorf("invalid multipart form: %w", err))
	}

	command, err := parseCommand(r.FormValue("command"))
	if err != nil {
		return domain.TurnRequest{}, err
	}
	req := domain.TurnRequest{Text: r.FormValue("text"), Command: command}

	for _, header := range r.MultipartForm.File["image"] {
		f, err := header.Open()
		if err != nil {
			return domain.TurnRequest{}, fmt.Errorf("open uploaded image: %w", err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return domain.TurnRequest{}, fmt.Errorf("read uploaded image: %w", err)
		}
		req.Images = append(req.Images, domain.ImageUpload{Filename: header.Filename, Data: data})
	}
	return req, nil
}

func parseCommand(raw string) (domain.Command, error) {
	command, ok := domain.ParseCommand(strings.TrimSpace(raw))
	if !ok {
		return domain.CommandNone, domain.WrapError(domain.ErrInvalidInput, "decode turn", fmt.Errorf("unknown command %q", raw))
	}
	return command, nil
}

func stripDataURIPrefix(s string) string {
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ","); ok {
			return payload
		}
	}
	return s
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
