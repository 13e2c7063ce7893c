package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/hawachat/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts any JSON-tagged record into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("nil payload")
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func UserToStruct(u models.User) (*structpb.Struct, error) { return toStruct(u) }

// StructToUser decodes a user. An empty struct decodes to nil.
func StructToUser(s *structpb.Struct) (*models.User, error) {
	if s == nil || len(s.GetFields()) == 0 {
		return nil, nil
	}
	var u models.User
	if err := fromStruct(s, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

func DraftToStruct(d models.Draft) (*structpb.Struct, error) { return toStruct(d) }

func StructToDraft(s *structpb.Struct) (models.Draft, error) {
	var d models.Draft
	if err := fromStruct(s, &d); err != nil {
		return models.Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}

func UsersToList(users []models.User) (*structpb.ListValue, error) {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(users))}
	for _, u := range users {
		s, err := toStruct(u)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, structpb.NewStructValue(s))
	}
	return out, nil
}

func ListToUsers(l *structpb.ListValue) ([]models.User, error) {
	out := make([]models.User, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		var u models.User
		if err := fromStruct(v.GetStructValue(), &u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		out = append(out, u)
	}
	return out, nil
}

func MessagesToList(msgs []models.Message) (*structpb.ListValue, error) {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(msgs))}
	for _, m := range msgs {
		s, err := toStruct(m)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, structpb.NewStructValue(s))
	}
	return out, nil
}

func ListToMessages(l *structpb.ListValue) ([]models.Message, error) {
	out := make([]models.Message, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		var m models.Message
		if err := fromStruct(v.GetStructValue(), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// PresenceRequest builds the UpdatePresence payload.
func PresenceRequest(id string, online bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":     structpb.NewStringValue(id),
		"online": structpb.NewBoolValue(online),
	}}
}

// StatusRequest builds the UpdateMessageStatus payload.
func StatusRequest(id string, status models.Status) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":     structpb.NewStringValue(id),
		"status": structpb.NewStringValue(string(status)),
	}}
}

// LoginRequest builds the Login payload.
func LoginRequest(id, phone string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":    structpb.NewStringValue(id),
		"phone": structpb.NewStringValue(phone),
	}}
}

// StringField reads a string field, empty when missing.
func StringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// BoolField reads a bool field, false when missing.
func BoolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}
