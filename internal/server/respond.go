package server

import (
	"encoding/json"
	"net/http"
)

// writeJSON сериализует ответ. Ошибку кодирования уже не исправить:
// заголовки отправлены, клиент получит обрыв
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
