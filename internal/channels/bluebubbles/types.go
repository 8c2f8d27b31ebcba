package bluebubbles

// TextRequest is the payload sent to POST /message/text.
type TextRequest struct {
	ChatGUID string `json:"chatGuid"`
	TempGUID string `json:"tempGuid"`
	Message  string `json:"message"`
	Method   string `json:"method"`
}

// APIResponse is the envelope the BlueBubbles server wraps every reply in.
type APIResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}
