package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

func newResponse(status int, body string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	return resp
}

func unauthorized(realm string) *http.Response {
	resp := newResponse(http.StatusUnauthorized, "401 - unauthorized")
	resp.Header.Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	return resp
}

func badRequest(message string) *http.Response {
	return newResponse(http.StatusBadRequest, message)
}

func tooManyRequests() *http.Response {
	return newResponse(http.StatusTooManyRequests, "429 - too many requests")
}

func requestEntityTooLarge() *http.Response {
	return newResponse(http.StatusRequestEntityTooLarge, "")
}

func badGateway(log *logrus.Logger, err error) *http.Response {
	if log != nil && err != nil {
		log.WithError(err).Error("backend request failed")
	}
	return newResponse(http.StatusBadGateway, "")
}
