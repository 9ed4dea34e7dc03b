package mensago

import (
	"strconv"
	"time"

	"github.com/darkwyrm/mensago-go-sdk/profile"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// DownloadUpdates checks for changes on the server and downloads them into
// the profile's update table. The sync loop asks IDLE how many updates have
// arrived since the last check and then pages through GETUPDATES until the
// server's reported count has been fetched. The time of the last check is
// persisted so the next sync picks up where this one stopped.
func DownloadUpdates(conn *ServerConnection, prof *profile.Profile) error {
	lastCheck, err := prof.GetSetting("last_update")
	if err != nil {
		lastCheck = "0"
	}

	err = conn.SendMessage(ClientRequest{Action: "IDLE", Data: map[string]string{
		"CountUpdates": lastCheck,
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}

	count, err := strconv.Atoi(response.StringField("UpdateCount"))
	if err != nil {
		return &ServerError{Code: 300, Status: MsgInternal,
			Info: "server supplied an invalid update count"}
	}

	if count == 0 {
		return prof.SetSetting("last_update",
			strconv.FormatInt(time.Now().UTC().Unix(), 10))
	}

	for {
		err = conn.SendMessage(ClientRequest{Action: "GETUPDATES", Data: map[string]string{
			"Time": lastCheck,
		}})
		if err != nil {
			return err
		}

		response, err = conn.ReadResponse()
		if err != nil {
			return err
		}
		if response.Code != 200 {
			return wrapServerError(response)
		}

		items, ok := response.Data["Updates"].([]any)
		if !ok {
			return &ServerError{Code: 300, Status: MsgInternal,
				Info: "server did not return an update list"}
		}
		updateTotal, err := strconv.Atoi(response.StringField("UpdateCount"))
		if err != nil || len(items) > updateTotal {
			return &ServerError{Code: 300, Status: MsgInternal,
				Info: "server supplied invalid update parameter info"}
		}

		for _, item := range items {
			record, err := parseUpdateItem(item)
			if err != nil {
				return err
			}

			exists, err := profile.HasUpdateRecord(prof.DB(), record.ID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			if err = profile.AddUpdateRecord(prof.DB(), record); err != nil {
				return err
			}
			lastCheck = strconv.FormatInt(record.Time, 10)
		}

		if len(items) == updateTotal {
			break
		}
	}

	return prof.SetSetting("last_update", strconv.FormatInt(time.Now().UTC().Unix(), 10))
}

// parseUpdateItem unpacks one entry from a GETUPDATES response.
func parseUpdateItem(item any) (*profile.UpdateRecord, error) {
	fields, ok := item.(map[string]any)
	if !ok {
		return nil, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server supplied a bad update record"}
	}

	record := &profile.UpdateRecord{}
	for _, name := range []string{"ID", "Type", "Data", "Time"} {
		if _, present := fields[name]; !present {
			return nil, &ServerError{Code: 300, Status: MsgInternal,
				Info: "server supplied an update record missing the " + name + " field"}
		}
	}

	id, _ := fields["ID"].(string)
	record.ID = types.NewRandomID(id)
	record.Type, _ = fields["Type"].(string)
	record.Data, _ = fields["Data"].(string)

	timeStr, _ := fields["Time"].(string)
	updateTime, err := strconv.ParseInt(timeStr, 10, 64)
	if err != nil {
		return nil, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server supplied an update record with a bad timestamp"}
	}
	record.Time = updateTime

	if err = record.Validate(); err != nil {
		return nil, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server supplied a bad update record"}
	}
	return record, nil
}
