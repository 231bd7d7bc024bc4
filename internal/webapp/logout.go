package webapp

import (
	"encoding/json"
	"net/http"

	"nuha.dev/fleetmap/internal/util"
)

type logoutRequest struct {
	WsToken string `json:"ws_token" validate:"required"`
}

type logoutResponse struct {
	Status int `json:"status"`
}

func (api *Api) Logout(w http.ResponseWriter, r *http.Request) {
	req_body := logoutRequest{}
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
	err = api.iss.Revoke(req_body.WsToken)
	if err != nil {
		api.log.Debug().Err(err).Msg("logout with invalid token")
		util.JsonWrite(w, logoutResponse{Status: -1})
		return
	}
	util.JsonWrite(w, logoutResponse{Status: 0})
}
