package fpstore

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func makeRouter(t *testing.T) (router *APIRouter, cleaner func()) {
	store, cleaner := makeStore(t)
	router = APIRouterOf(store, 0)
	return router, cleaner
}

func TestWriteFingerprintHlr(t *testing.T) {
	router, cleaner := makeRouter(t)
	defer cleaner()
	rr := httptest.NewRecorder()

	marshalled, err := json.Marshal(FingerprintInfo{
		CanonicalForm: mockCanonical,
		Protocol:      "http2",
		Label:         "Chrome 98",
	})
	if err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest("POST", "/fingerprints/"+mockHash, bytes.NewBuffer(marshalled))
	if err != nil {
		t.Fatal(err)
	}
	router.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusCreated {
		t.Errorf("handler returned wrong status code: got %v with body %v, want %v",
			status, rr.Body, http.StatusCreated)
	}
}

func TestGetFingerprintHlr(t *testing.T) {
	router, cleaner := makeRouter(t)
	defer cleaner()

	if _, err := router.store.RecordSighting(mockHash, mockCanonical, "http2"); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	req, err := http.NewRequest("GET", "/fingerprints/"+mockHash, nil)
	if err != nil {
		t.Fatal(err)
	}
	router.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v with body %v, want %v",
			status, rr.Body, http.StatusOK)
	}
	var info FingerprintInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.CanonicalForm != mockCanonical {
		t.Error(
			"For", "stored canonical form",
			"expecting", mockCanonical,
			"got", info.CanonicalForm,
		)
	}
}

func TestGetUnknownFingerprintHlr(t *testing.T) {
	router, cleaner := makeRouter(t)
	defer cleaner()

	rr := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/fingerprints/"+mockHash, nil)
	router.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusNotFound {
		t.Errorf("handler returned wrong status code: got %v, want %v", status, http.StatusNotFound)
	}
}

func TestDeleteFingerprintHlr(t *testing.T) {
	router, cleaner := makeRouter(t)
	defer cleaner()

	if _, err := router.store.RecordSighting(mockHash, mockCanonical, "http2"); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/fingerprints/"+mockHash, nil)
	router.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v with body %v, want %v",
			status, rr.Body, http.StatusOK)
	}

	if _, err := router.store.GetFingerprint(mockHash); err != ErrFingerprintNotFound {
		t.Error(
			"For", "fingerprint after deletion",
			"expecting", ErrFingerprintNotFound,
			"got", err,
		)
	}
}

func TestListAllFingerprintsHlr(t *testing.T) {
	router, cleaner := makeRouter(t)
	defer cleaner()

	if _, err := router.store.RecordSighting(mockHash, mockCanonical, "http2"); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/fingerprints", nil)
	router.ServeHTTP(rr, req)

	var infos []FingerprintInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Errorf("expecting 1 fingerprint, got %v", len(infos))
	}
}

func TestRateLimit(t *testing.T) {
	store, cleaner := makeStore(t)
	defer cleaner()
	router := APIRouterOf(store, 1)

	var limited bool
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/fingerprints", nil)
		router.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("expecting at least one request to be rate limited")
	}
}
