package bot

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"shopbot/internal/identity"
	"shopbot/internal/logger"
	"shopbot/internal/state"

	"go.uber.org/zap"
)

const minNameLength = 2

func (d *Dispatcher) regName(ctx context.Context, ev Event) ([]Reply, error) {
	name := strings.TrimSpace(ev.Text)
	if utf8.RuneCountInString(name) < minNameLength {
		return []Reply{text("Имя слишком короткое. Введите ещё раз или нажмите «Отмена».")}, nil
	}

	if _, err := d.identity.RegisterOrTouch(ctx, ev.PrincipalID, name); err != nil {
		return nil, err
	}
	if err := d.states.UpdateScratch(ctx, ev.PrincipalID, state.Scratch{
		Registration: &state.RegistrationDraft{Name: name},
	}); err != nil {
		return nil, err
	}
	if err := d.states.SetState(ctx, ev.PrincipalID, state.RegPhone); err != nil {
		return nil, err
	}
	return []Reply{contactPrompt("Отправьте ваш номер телефона (кнопкой ниже) или введите вручную.")}, nil
}

func (d *Dispatcher) regPhone(ctx context.Context, ev Event) ([]Reply, error) {
	raw := ev.Text
	if ev.Kind == KindContact {
		raw = ev.ContactPhone
	}

	phone, err := d.identity.BeginPhoneVerification(ctx, ev.PrincipalID, raw)
	switch {
	case errors.Is(err, identity.ErrInvalidPhone):
		return []Reply{text("Не удалось распознать номер. Попробуйте снова или нажмите «Отмена».")}, nil
	case errors.Is(err, identity.ErrSMSFailed):
		logger.L.Warn("SMS с кодом не отправлено", zap.Int64("principal_id", ev.PrincipalID), zap.Error(err))
		return []Reply{text("Не удалось отправить SMS. Попробуйте позже.")}, nil
	case errors.Is(err, identity.ErrNotRegistered):
		return d.restartRegistration(ctx, ev)
	case err != nil:
		return nil, err
	}

	scratch, err := d.states.GetScratch(ctx, ev.PrincipalID)
	if err != nil {
		return nil, err
	}
	draft := state.RegistrationDraft{Phone: phone}
	if scratch.Registration != nil {
		draft.Name = scratch.Registration.Name
	}
	if err := d.states.UpdateScratch(ctx, ev.PrincipalID, state.Scratch{Registration: &draft}); err != nil {
		return nil, err
	}
	if err := d.states.SetState(ctx, ev.PrincipalID, state.RegOTP); err != nil {
		return nil, err
	}
	return []Reply{{Text: "Код отправлен по SMS. Введите код цифрами:", Menu: cancelMenu()}}, nil
}

func (d *Dispatcher) regOTP(ctx context.Context, ev Event) ([]Reply, error) {
	code := strings.TrimSpace(ev.Text)
	if !identity.IsCode(code) {
		return []Reply{text("Код должен состоять только из цифр. Попробуйте ещё раз.")}, nil
	}

	err := d.identity.VerifyOTP(ctx, ev.PrincipalID, code)
	switch {
	case errors.Is(err, identity.ErrOTPMismatch):
		return []Reply{text("Неверный код. Попробуйте ещё раз.")}, nil
	case errors.Is(err, identity.ErrOTPExpired):
		if err := d.states.SetState(ctx, ev.PrincipalID, state.RegPhone); err != nil {
			return nil, err
		}
		return []Reply{contactPrompt("Срок действия кода истёк. Отправьте номер ещё раз, мы пришлём новый код.")}, nil
	case errors.Is(err, identity.ErrNoPendingOTP):
		if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
			return nil, err
		}
		return []Reply{text("Сессия подтверждения не найдена. Начните заново: /start")}, nil
	case err != nil:
		return nil, err
	}

	if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
		return nil, err
	}
	return []Reply{{
		Text: "Телефон подтверждён! Добро пожаловать.",
		Menu: mainMenu(d.admins.IsAdmin(ev.PrincipalID)),
	}}, nil
}

// restartRegistration - участник пропал из хранилища посреди регистрации.
func (d *Dispatcher) restartRegistration(ctx context.Context, ev Event) ([]Reply, error) {
	if err := d.states.Clear(ctx, ev.PrincipalID); err != nil {
		return nil, err
	}
	return []Reply{text("Сначала зарегистрируйтесь: /start")}, nil
}
