package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. Admin requests carry a single confirmation field.
const maxRequestBody = 4096

const protobufType = "application/x-protobuf"

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.
func isProtobuf(r *http.Request) bool {
	return protobufMedia(r.Header.Get("Content-Type"))
}

// wantsProtobuf returns true if the client asked for a protobuf response.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if protobufMedia(part) {
			return true
		}
	}
	return false
}

func protobufMedia(v string) bool {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return mt == protobufType || mt == "application/protobuf"
}

// readProto reads the request body and unmarshals it into msg.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// respond writes body as a google.protobuf.Struct if the client accepts
// protobuf, and as JSON otherwise.
func respond(w http.ResponseWriter, r *http.Request, status int, body map[string]any) {
	if !wantsProtobuf(r) {
		writeJSON(w, status, body)
		return
	}
	msg, err := structpb.NewStruct(body)
	if err != nil {
		http.Error(w, "proto convert error", http.StatusInternalServerError)
		return
	}
	writeProto(w, status, msg)
}
