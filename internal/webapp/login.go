package webapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/ui/msg"
	"nuha.dev/fleetmap/internal/util"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Status     int       `json:"status"`
	WsToken    string    `json:"ws_token,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	Markup     string    `json:"markup,omitempty"`
}

func (api *Api) Login(w http.ResponseWriter, r *http.Request) {
	req_body := LoginRequest{}
	err := json.NewDecoder(r.Body).Decode(&req_body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = api.vld.Struct(req_body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = api.st.SignIn(r.Context(), req_body.Email, req_body.Password)
	if err != nil {
		var aerr *store.AuthError
		if !errors.As(err, &aerr) {
			panic(err)
		}
		api.log.Error().Str("code", aerr.Code).Str("email", req_body.Email).Msg(aerr.Message)
		util.JsonWrite(w, LoginResponse{Status: -1, Code: aerr.Code, Message: aerr.Message, Markup: msg.AuthFailureMarkup})
		return
	}
	ws_token, valid_until, err := api.iss.Issue(req_body.Email)
	if err != nil {
		panic(err)
	}
	api.log.Info().Str("email", req_body.Email).Msg("operator signed in")
	util.JsonWrite(w, LoginResponse{Status: 0, WsToken: ws_token, ValidUntil: &valid_until})
}
