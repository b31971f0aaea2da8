package notify

import (
	"fmt"
	"html"
	"net/url"
)

// Message is a rendered subject and HTML body.
type Message struct {
	Subject string
	Body    string
}

func VerifyEmail(baseURL, name, token string) Message {
	link := baseURL + "/verify-email?token=" + url.QueryEscape(token)
	return Message{
		Subject: "Confirme seu e-mail - Black Belt Platform",
		Body: fmt.Sprintf(
			`<p>Olá %s,</p><p>Confirme seu e-mail clicando no link abaixo (válido por 48 horas):</p><p><a href="%s">Confirmar e-mail</a></p>`,
			html.EscapeString(name), html.EscapeString(link),
		),
	}
}

func PasswordReset(baseURL, name, token string) Message {
	link := baseURL + "/reset-password?token=" + url.QueryEscape(token)
	return Message{
		Subject: "Redefinição de senha - Black Belt Platform",
		Body: fmt.Sprintf(
			`<p>Olá %s,</p><p>Recebemos um pedido para redefinir sua senha. O link expira em 1 hora:</p><p><a href="%s">Redefinir senha</a></p><p>Se você não solicitou, ignore este e-mail.</p>`,
			html.EscapeString(name), html.EscapeString(link),
		),
	}
}

func Invitation(baseURL, name, invitationID string) Message {
	link := surveyLink(baseURL, invitationID)
	return Message{
		Subject: "Convite para avaliação COPSOQ-II",
		Body: fmt.Sprintf(
			`<p>Olá %s,</p><p>Você foi convidado(a) a responder a avaliação de riscos psicossociais. O convite expira em 14 dias.</p><p><a href="%s">Responder avaliação</a></p>`,
			html.EscapeString(name), html.EscapeString(link),
		),
	}
}

func Reminder(baseURL, name, invitationID string, sequence int) Message {
	link := surveyLink(baseURL, invitationID)
	return Message{
		Subject: fmt.Sprintf("Lembrete %d/3: avaliação COPSOQ-II pendente", sequence),
		Body: fmt.Sprintf(
			`<p>Olá %s,</p><p>Sua avaliação ainda está pendente. Por favor, responda antes que o convite expire.</p><p><a href="%s">Responder avaliação</a></p>`,
			html.EscapeString(name), html.EscapeString(link),
		),
	}
}

func surveyLink(baseURL, invitationID string) string {
	return baseURL + "/survey/" + url.PathEscape(invitationID)
}
