package testutil

import (
	"net/http"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/requestcontext"
)

// WithActor attaches an authenticated actor the way the auth middleware
// would. An unparsable userID leaves the request anonymous.
func WithActor(req *http.Request, userID, name, role string) *http.Request {
	uid, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithActor(req.Context(), requestcontext.ActorInfo{ID: uid, Name: name, Role: role}))
}

func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
