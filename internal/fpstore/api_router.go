package fpstore

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	gmux "github.com/gorilla/mux"
	"github.com/juju/ratelimit"
)

type APIRouter struct {
	*gmux.Router
	store Store
}

// APIRouterOf serves the fingerprint database over HTTP. requestsPerSecond
// caps the request rate across all callers; 0 disables the cap.
func APIRouterOf(store Store, requestsPerSecond float64) *APIRouter {
	ret := &APIRouter{
		store: store,
	}
	ret.registerMux(requestsPerSecond)
	return ret
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(bucket *ratelimit.Bucket) gmux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bucket.TakeAvailable(1) == 0 {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (ar *APIRouter) registerMux(requestsPerSecond float64) {
	ar.Router = gmux.NewRouter()
	ar.HandleFunc("/fingerprints", ar.listAllFingerprintsHlr).Methods("GET")
	ar.HandleFunc("/fingerprints/{hash}", ar.getFingerprintHlr).Methods("GET")
	ar.HandleFunc("/fingerprints/{hash}", ar.writeFingerprintHlr).Methods("POST")
	ar.HandleFunc("/fingerprints/{hash}", ar.deleteFingerprintHlr).Methods("DELETE")
	ar.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	})
	ar.Use(corsMiddleware)
	if requestsPerSecond > 0 {
		ar.Use(rateLimitMiddleware(ratelimit.NewBucketWithRate(requestsPerSecond, int64(requestsPerSecond)+1)))
	}
}

func (ar *APIRouter) listAllFingerprintsHlr(w http.ResponseWriter, r *http.Request) {
	infos, err := ar.store.ListAllFingerprints()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp, err := json.Marshal(infos)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(resp)
}

func (ar *APIRouter) getFingerprintHlr(w http.ResponseWriter, r *http.Request) {
	hash := gmux.Vars(r)["hash"]
	info, err := ar.store.GetFingerprint(hash)
	if err == ErrFingerprintNotFound {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err == ErrBadHash {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp, err := json.Marshal(info)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(resp)
}

func (ar *APIRouter) writeFingerprintHlr(w http.ResponseWriter, r *http.Request) {
	hash := gmux.Vars(r)["hash"]
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var info FingerprintInfo
	if err = json.Unmarshal(body, &info); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info.Hash = hash
	err = ar.store.WriteFingerprint(info)
	if err == ErrBadHash {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (ar *APIRouter) deleteFingerprintHlr(w http.ResponseWriter, r *http.Request) {
	hash := gmux.Vars(r)["hash"]
	err := ar.store.DeleteFingerprint(hash)
	if err == ErrFingerprintNotFound {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err == ErrBadHash {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
