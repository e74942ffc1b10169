package utils

import (
	"math/rand"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

func Message(status bool, message string) map[string]interface{} {
	return map[string]interface{}{"status": status, "message": message}
}

func Respond(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("encoding response")
	}
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890")

func RandSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func RandomId() string {
	return RandSeq(24)
}

// Slug returns a short lowercase public identifier.
func Slug() string {
	return strings.ToLower(RandSeq(10))
}
