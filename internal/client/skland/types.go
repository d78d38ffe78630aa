package skland

import "encoding/json"

// Credential is the session credential issued for an account token.
type Credential struct {
	// Cred is sent verbatim in the cred header.
	Cred string `json:"cred"`
	// Token keys the request signature.
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// Character is a game account bound to the skland user.
type Character struct {
	AppCode     string `json:"appCode"`
	GameName    string `json:"gameName"`
	UID         string `json:"uid"`
	NickName    string `json:"nickName"`
	ChannelName string `json:"channelName"`
	GameID      int    `json:"gameId"`
	Roles       []Role `json:"roles"`
}

// Role is an in-game role of an endfield account.
type Role struct {
	Nickname string `json:"nickname"`
	RoleID   string `json:"roleId"`
	ServerID string `json:"serverId"`
}

// envelope is the common response shape; the grant endpoint uses status/msg instead of code/message.
type envelope struct {
	Code    int             `json:"code"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Message
}

type grantData struct {
	Code string `json:"code"`
}

type bindingData struct {
	List []struct {
		AppCode     string      `json:"appCode"`
		AppName     string      `json:"appName"`
		BindingList []Character `json:"bindingList"`
	} `json:"list"`
}

type arknightsAttendance struct {
	Awards []struct {
		Resource struct {
			Name string `json:"name"`
		} `json:"resource"`
		Count int `json:"count"`
	} `json:"awards"`
}

type endfieldAttendance struct {
	AwardIDs []struct {
		ID string `json:"id"`
	} `json:"awardIds"`
	ResourceInfoMap map[string]struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	} `json:"resourceInfoMap"`
}
