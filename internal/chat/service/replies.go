package service

import (
	"fmt"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
)

// ============================================================
// Canned replies (English / Spanish from Spain)
// ============================================================

// phrase is one user-facing sentence in both supported languages.
type phrase struct {
	en string
	es string
}

func (p phrase) in(lang domain.Language) string {
	if lang == domain.LanguageSpanish {
		return p.es
	}
	return p.en
}

// format renders the phrase with fmt verbs.
func (p phrase) format(lang domain.Language, args ...any) string {
	return fmt.Sprintf(p.in(lang), args...)
}

var (
	replyNoOrderInfo = phrase{
		en: "Hey! I need your order number (like #12345) and email to help you out 😊",
		es: "¡Perfecto! Necesito el número de pedido (tipo #12345) y tu email para poder ayudarte 😊",
	}
	replyInvalidOrderNumber = phrase{
		en: "Oops! Can't find any order with that number 😅 Can you check and try again?",
		es: "¡Vaya! No encuentro ningún pedido con ese número 😅 ¿Puedes revisarlo y volver a intentarlo?",
	}
	replyEmailMismatch = phrase{
		en: "Oops! The email doesn't match the order 🤔 Can you check if it's the right one?",
		es: "¡Ups! El email no coincide con el del pedido 🤔 ¿Puedes revisar si es el correcto?",
	}
	replyOtherOrderNeedsInfo = phrase{
		en: "To better help you with your order-related query, I need your order number (like #12345) and email 😊",
		es: "Para ayudarte mejor con tu consulta sobre el pedido, necesito el número de pedido (tipo #12345) y tu email 😊",
	}
	replyGeneric = phrase{
		en: "Sorry, an error occurred while processing your request. Please try again.",
		es: "Lo siento, ha ocurrido un error al procesar tu solicitud. Por favor, inténtalo de nuevo.",
	}
	replyClosing = phrase{
		en: "Thank you for trusting Shameless Collective! Have a great day! 🙌✨",
		es: "¡Gracias por confiar en Shameless Collective! ¡Que tengas un buen día! 🙌✨",
	}
	replyReturnsLink = phrase{
		en: "Sure thing! You can make the change or return in the following link: %s",
		es: "¡Claro! Puedes hacer el cambio o devolución en el siguiente link: %s",
	}
)

// ---- change delivery ----

var (
	replyAskAddress = phrase{
		en: "Can you give me the new delivery address? Remember to include the zip code, city and complete address 📦",
		es: "¿Me puedes dar la nueva dirección de entrega? Recuerda incluir el código postal, ciudad y dirección completa 📦",
	}
	replyInvalidAddress = phrase{
		en: "Sorry, I couldn't validate that address. Could you provide me with the complete address including zip code and city? 🏠",
		es: "Lo siento, no pude validar esa dirección. ¿Podrías proporcionarme la dirección completa incluyendo código postal y ciudad? 🏠",
	}
	replyCandidatesHeader = phrase{
		en: "I found multiple possible addresses. Please choose the number of the correct address or provide a new one:",
		es: "He encontrado varias direcciones posibles. Por favor, elige el número de la dirección correcta o proporciona una nueva:",
	}
	replyConfirmHeader = phrase{
		en: "Is this the right address?",
		es: "¿Es esta la dirección correcta?",
	}
	replyConfirmFooter = phrase{
		en: `Please reply "yes" to confirm or provide the correct address if it's not 😊`,
		es: `Por favor, responde "sí" para confirmar o proporciona la dirección correcta si no lo es 😊`,
	}
	replyAddressUpdated = phrase{
		en: "Perfect! I've updated the shipping address to:\n\n%s\n\nYour order will be shipped to this new address! 📦✨",
		es: "¡Perfecto! He actualizado la dirección de envío a:\n\n%s\n\n¡Tu pedido se enviará a esta nueva dirección! 📦✨",
	}
	replyCallFailed = phrase{
		en: "Sorry, there was a problem making the call. Please try again later.",
		es: "Lo siento, hubo un problema al realizar la llamada. Por favor, intenta más tarde.",
	}
	callOpeningLine = phrase{
		en: "Hello, this is Silvia. I'm calling to change the delivery address of my order.",
		es: "Hola, soy Silvia. Llamo para cambiar la dirección de envío de mi pedido",
	}
)

// ---- update order ----

var (
	instructionAskUpdateType = phrase{
		en: "What would you like to update in your order? The shipping address or a product? 🤔",
		es: "¿Qué te gustaría actualizar en tu pedido? ¿La dirección de envío o algún producto? 🤔",
	}
	replyProductChange = phrase{
		en: "To change a product in your order, we recommend making a return and placing a new order. You can start the return here: %s",
		es: "Para cambiar un producto en tu pedido, te recomendamos hacer una devolución y realizar un nuevo pedido. Puedes iniciar el proceso de devolución aquí: %s",
	}
)

// ---- sizing ----

var (
	replyAskSizingProduct = phrase{
		en: "Which product would you like to know the size for?",
		es: "¿Sobre qué producto te gustaría saber la talla?",
	}
	replySizingIntro = phrase{
		en: "To recommend the best size for the %s, I need to know:\n",
		es: "Para recomendarte la mejor talla para el %s, necesito saber:\n",
	}
	replySizingNeedHeight = phrase{
		en: "- Your height (in cm)\n",
		es: "- Tu altura (en cm)\n",
	}
	replySizingNeedFit = phrase{
		en: "- Your preferred fit (tight, regular, loose)",
		es: "- Tu preferencia de ajuste (ajustado, regular, holgado)",
	}
	replyProductNotFound = phrase{
		en: "Sorry, I couldn't find that product. Could you verify the name?",
		es: "Lo siento, no pude encontrar ese producto. ¿Podrías verificar el nombre?",
	}
)

// ---- restock ----

var (
	replyAskRestockProduct = phrase{
		en: "Which product would you like to know about restocking?",
		es: "¿Qué producto te gustaría saber cuándo estará disponible?",
	}
	replyRestockProductNotFound = phrase{
		en: `I'm sorry, I couldn't find the product. Could you confirm the exact product name? For example: "Without shame crewneck"`,
		es: `Lo siento, no pude encontrar el producto. ¿Podrías confirmar el nombre exacto del producto? Por ejemplo: "Without shame crewneck"`,
	}
	replyRestockProductNamed = phrase{
		en: `I'm sorry, I couldn't find the product "%s". Could you confirm the exact product name? For example: "Without shame crewneck"`,
		es: `Lo siento, no pude encontrar el producto "%s". ¿Podrías confirmar el nombre exacto del producto? Por ejemplo: "Without shame crewneck"`,
	}
	replyAskRestockSize = phrase{
		en: "Which size would you like to know about restocking?",
		es: "¿Qué talla te gustaría saber cuándo estará disponible?",
	}
	replyRestockSizeNotFound = phrase{
		en: `I'm sorry, I couldn't find the size you mentioned. Could you confirm the exact size of the product? For example: "Small"`,
		es: `Lo siento, no pude encontrar la talla indicada. ¿Podrías confirmar la talla exacta del producto? Por ejemplo: "Talla S"`,
	}
	replyVariantMissing = phrase{
		en: "Sorry, I couldn't find that specific size for this product.",
		es: "Lo siento, no encontré esa talla específica para este producto.",
	}
	replyInStock = phrase{
		en: "Good news! This size is available! Get it here: %s",
		es: "¡Buenas noticias! Esta talla está disponible! Consigue la tuya aquí: %s",
	}
	replyInStockNoLink = phrase{
		en: "Good news! This size is available! You can find it in our online store.",
		es: "¡Buenas noticias! Esta talla está disponible! La encontrarás en nuestra tienda online.",
	}
	replyAskRestockEmail = phrase{
		en: "Perfect! If you share your email with me, I'll notify you when the product is back in stock 😊",
		es: "¡Perfecto! Si me dejas tu email te avisaré cuando el producto esté disponible 😊",
	}
	replyRestockSubscribed = phrase{
		en: "Perfect! We'll notify you at %s when the %s is back in stock 😊",
		es: "¡Perfecto! Te avisaremos en %s cuando el %s esté disponible 😊",
	}
	replyEmailTaken = phrase{
		en: "Oops! It seems that email is already registered. Could you try with another one?",
		es: "¡Vaya! Parece que ese email ya lo tenemos registrado. ¿Podrías intentarlo con otro?",
	}
	replyRegisterFailed = phrase{
		en: "I'm sorry, there was an error registering your email. Could you please try again?",
		es: "Lo siento, ha ocurrido un error al registrar tu correo. ¿Podrías intentarlo de nuevo?",
	}
)

// ---- promo ----

var (
	replyPromoOffer = phrase{
		en: "Let's do something: if you share your email with me, I'll create a 20% discount for you that you can use during the next 15 minutes 😊",
		es: "Vamos a hacer una cosa, si me dejas tu email te crearé un descuento del 20% que podrás usar durante los próximos 15 minutos 😊",
	}
	replyPromoCode = phrase{
		en: "Here's your 20%% discount code: %s. Don't tell anyone! It expires in 15 minutes so take advantage of it!",
		es: "Aquí tienes tu descuento del 20%%: %s. ¡No se lo digas a nadie! Caduca en 15 minutos, ¡así que aprovéchalo!",
	}
	replyPromoFailed = phrase{
		en: "I'm sorry, there was an error creating the discount. Could you please try again?",
		es: "Lo siento, ha ocurrido un error al crear el descuento. ¿Podrías intentarlo de nuevo?",
	}
)

// ---- invoice ----

var (
	replyInvoiceSent = phrase{
		en: "Perfect! I've sent the invoice to your email 📧",
		es: "¡Perfecto! Te he enviado la factura por email 📧",
	}
	replyInvoiceFailed = phrase{
		en: "Sorry, there was an error generating the invoice. Please try again later.",
		es: "Lo siento, ha habido un error generando la factura. Por favor, inténtalo de nuevo más tarde.",
	}
)

// ============================================================
// Address prompts
// ============================================================

// addressCandidatesPrompt lists every geocoder candidate with a 1-based index.
func addressCandidatesPrompt(lang domain.Language, candidates []string) string {
	var b strings.Builder
	b.WriteString(replyCandidatesHeader.in(lang))
	b.WriteString("\n\n")
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, c)
	}
	return b.String()
}

// addressConfirmPrompt proposes a single formatted address for confirmation.
func addressConfirmPrompt(lang domain.Language, formatted string) string {
	return replyConfirmHeader.in(lang) + "\n\n" + formatted + "\n\n" + replyConfirmFooter.in(lang)
}

// proposedAddress extracts the address from a confirmation prompt produced
// by addressConfirmPrompt, in either language.
func proposedAddress(text string) (string, bool) {
	for _, lang := range []domain.Language{domain.LanguageEnglish, domain.LanguageSpanish} {
		header := replyConfirmHeader.in(lang) + "\n\n"
		footer := "\n\n" + replyConfirmFooter.in(lang)
		start := strings.Index(text, header)
		if start < 0 {
			continue
		}
		rest := text[start+len(header):]
		end := strings.Index(rest, footer)
		if end < 0 {
			continue
		}
		if addr := strings.TrimSpace(rest[:end]); addr != "" {
			return addr, true
		}
	}
	return "", false
}

// candidateList extracts the numbered entries of a candidates prompt.
func candidateList(text string) []string {
	found := false
	for _, lang := range []domain.Language{domain.LanguageEnglish, domain.LanguageSpanish} {
		if strings.Contains(text, replyCandidatesHeader.in(lang)) {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := candidateLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if m[1] != fmt.Sprint(len(out)+1) {
			break
		}
		out = append(out, strings.TrimSpace(m[2]))
	}
	return out
}
