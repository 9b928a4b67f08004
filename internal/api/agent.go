package api

import (
	"fmt"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/soyeahso/agentdesk/internal/credentials"
	"github.com/soyeahso/agentdesk/internal/domain"
)

// agentFromToken builds the agent record from the token response, falling
// back to the access token's claims.
func agentFromToken(tok *oauth2.Token, username string) domain.Agent {
	agent := domain.Agent{
		ID:       extraID(tok.Extra("user_id")),
		Username: extraString(tok.Extra("username")),
		Name:     extraString(tok.Extra("name")),
		Role:     extraString(tok.Extra("role")),
	}
	if agent.ID.IsZero() || agent.Role == "" {
		if claims, err := credentials.ParseClaims(tok.AccessToken); err == nil {
			if agent.ID.IsZero() {
				agent.ID = claims.AgentID()
			}
			if agent.Role == "" {
				agent.Role = claims.Role
			}
			if agent.Username == "" {
				agent.Username = claims.Username
			}
		}
	}
	if agent.Username == "" {
		agent.Username = username
	}
	return agent
}

func extraID(v any) domain.ID {
	switch x := v.(type) {
	case string:
		return domain.ID(x)
	case float64:
		return domain.ID(strconv.FormatFloat(x, 'f', -1, 64))
	case nil:
		return ""
	default:
		return domain.ID(fmt.Sprint(x))
	}
}

func extraString(v any) string {
	s, _ := v.(string)
	return s
}
