package bot

import (
	"context"
	"errors"
	"strings"

	"shopbot/internal/identity"
	"shopbot/internal/model"
	"shopbot/internal/state"
)

// addressSteps - порядок необязательных полей адреса после первой строки.
var addressSteps = map[state.State]struct {
	next   state.State
	prompt string
	set    func(d *state.AddressDraft, v *string)
}{
	state.AddrApt: {state.AddrEntrance, "Подъезд (или «Нет»):",
		func(d *state.AddressDraft, v *string) { d.Apt = v }},
	state.AddrEntrance: {state.AddrFloor, "Этаж (или «Нет»):",
		func(d *state.AddressDraft, v *string) { d.Entrance = v }},
	state.AddrFloor: {state.AddrComment, "Комментарий курьеру (или «Нет»):",
		func(d *state.AddressDraft, v *string) { d.Floor = v }},
}

func (d *Dispatcher) beginAddress(ctx context.Context, ev Event) ([]Reply, error) {
	if _, err := d.identity.User(ctx, ev.PrincipalID); err != nil {
		if errors.Is(err, identity.ErrNotRegistered) {
			return []Reply{text("Сначала зарегистрируйтесь: /start")}, nil
		}
		return nil, err
	}

	if err := d.states.UpdateScratch(ctx, ev.PrincipalID, state.Scratch{Address: &state.AddressDraft{}}); err != nil {
		return nil, err
	}
	if err := d.states.SetState(ctx, ev.PrincipalID, state.AddrLine); err != nil {
		return nil, err
	}
	return []Reply{{Text: "Отправьте адрес (улица и дом) или нажмите «Отмена».", Menu: cancelMenu()}}, nil
}

func (d *Dispatcher) addressStep(ctx context.Context, ev Event, st state.State) ([]Reply, error) {
	val := strings.TrimSpace(ev.Text)

	scratch, err := d.states.GetScratch(ctx, ev.PrincipalID)
	if err != nil {
		return nil, err
	}
	draft := state.AddressDraft{}
	if scratch.Address != nil {
		draft = *scratch.Address
	}

	if st == state.AddrLine {
		if !identity.ValidAddressLine(val) {
			return []Reply{text("Похоже на слишком короткий адрес. Введите улицу и дом.")}, nil
		}
		draft.Line = val
		return d.nextAddressStep(ctx, ev.PrincipalID, draft, state.AddrApt, "Квартира/офис (или «Нет»):")
	}

	if st == state.AddrComment {
		draft.Comment = optional(val)
		return d.saveAddress(ctx, ev, draft)
	}

	step := addressSteps[st]
	step.set(&draft, optional(val))
	return d.nextAddressStep(ctx, ev.PrincipalID, draft, step.next, step.prompt)
}

func (d *Dispatcher) nextAddressStep(ctx context.Context, principalID int64, draft state.AddressDraft, next state.State, prompt string) ([]Reply, error) {
	if err := d.states.UpdateScratch(ctx, principalID, state.Scratch{Address: &draft}); err != nil {
		return nil, err
	}
	if err := d.states.SetState(ctx, principalID, next); err != nil {
		return nil, err
	}
	return []Reply{text(prompt)}, nil
}

func (d *Dispatcher) saveAddress(ctx context.Context, ev Event, draft state.AddressDraft) ([]Reply, error) {
	addr, err := d.identity.SaveDefaultAddress(ctx, ev.PrincipalID, draft.ToAddress())
	switch {
	case errors.Is(err, identity.ErrInvalidAddress):
		// черновик потерян (истёк TTL): начинаем с первой строки
		return d.nextAddressStep(ctx, ev.PrincipalID, state.AddressDraft{}, state.AddrLine,
			"Черновик адреса потерян. Введите улицу и дом заново.")
	case errors.Is(err, identity.ErrNotRegistered):
		return d.restartRegistration(ctx, ev)
	case err != nil:
		return nil, err
	}

	// черновик оформления заказа переживает смену адреса между deliv: и confirm:
	if err := d.states.SetState(ctx, ev.PrincipalID, state.StateNone); err != nil {
		return nil, err
	}
	return []Reply{{
		Text: "Адрес сохранён как адрес по умолчанию:\n" + FormatAddress(model.SnapshotOf(addr)),
		Menu: mainMenu(d.admins.IsAdmin(ev.PrincipalID)),
	}}, nil
}

// optional: пустой ввод и «нет» в любом регистре - поле не заполнено.
func optional(val string) *string {
	if val == "" || fold(val) == fold("нет") {
		return nil
	}
	return &val
}
