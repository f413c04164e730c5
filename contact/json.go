package contact

import (
	"encoding/json"
	"log"
	"net/http"
)

// Response is the root response for every api call. Message repeats the human readable
// outcome at the top level for the site's form script.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Errors  interface{} `json:"errors"`
	Result  interface{} `json:"result"`
	Meta    Meta        `json:"meta"`
}

// Errors is our error struct for if something goes wrong
type Errors struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// Meta contains our version number and by
type Meta struct {
	Version string `json:"version"`
	By      string `json:"by"`
}

// GetMeta returns meta info for json api responses
func GetMeta() Meta {
	return Meta{
		Version: version,
		By:      "Au Roi Lion",
	}
}

// returnJSONError returns json with custom error message
func returnJSONError(w http.ResponseWriter, r *http.Request, status int, reason string, msg string) {
	returnJSONErrorDetail(w, r, status, reason, msg, "")
}

func returnJSONErrorDetail(w http.ResponseWriter, r *http.Request, status int, reason string, msg string, detail string) {
	returnJSON(w, r, status, Response{
		Success: false,
		Message: msg,
		Result:  nil,
		Meta:    GetMeta(),
		Errors: Errors{
			Code:   status,
			Reason: reason,
			Msg:    msg,
			Detail: detail,
		},
	})
}

func returnJSON(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	err := encoder.Encode(resp)
	if err != nil {
		log.Printf("returnJSON: failed to write response to %v. err=%v", r.URL.Path, err)
		return
	}
}
