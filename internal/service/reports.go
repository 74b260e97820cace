package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/pricing"
)

const CurrentSession = "current"

// ActiveSession returns nil when no session is open.
func (s *Service) ActiveSession(ctx context.Context) (*domain.ReportSession, error) {
	return s.repo.ActiveSession(ctx)
}

func (s *Service) StartSession(ctx context.Context) (domain.ReportSession, error) {
	session, err := s.repo.StartSession(ctx)
	if err != nil {
		return domain.ReportSession{}, err
	}
	s.logger.Info("report session started", "session_id", session.ID)
	return *session, nil
}

func (s *Service) StopSession(ctx context.Context) (domain.ReportSession, error) {
	session, err := s.repo.StopSession(ctx)
	if err != nil {
		return domain.ReportSession{}, err
	}
	s.logger.Info("report session stopped", "session_id", session.ID)
	return *session, nil
}

// SessionReport aggregates delivered orders per day for the session named by
// ref, either "current" or a numeric id.
func (s *Service) SessionReport(ctx context.Context, ref string) (domain.SessionReport, error) {
	ref = strings.TrimSpace(ref)

	var session *domain.ReportSession
	var err error
	if ref == "" || ref == CurrentSession {
		session, err = s.repo.ActiveSession(ctx)
		if err == nil && session == nil {
			err = domain.ErrNoActiveSession
		}
	} else {
		id, parseErr := strconv.ParseInt(ref, 10, 64)
		if parseErr != nil || id < 1 {
			return domain.SessionReport{}, &domain.ValidationError{Field: "session", Message: "must be \"current\" or a session id"}
		}
		session, err = s.repo.GetSession(ctx, id)
	}
	if err != nil {
		return domain.SessionReport{}, err
	}

	days, err := s.repo.SessionDailyReport(ctx, session.ID)
	if err != nil {
		return domain.SessionReport{}, err
	}

	totals := domain.ReportTotals{TotalRevenue: decimal.Zero, TotalProfit: decimal.Zero}
	for _, day := range days {
		totals.TotalRevenue = totals.TotalRevenue.Add(day.Revenue)
		totals.TotalOrders += day.DeliveredOrders
		totals.TotalProfit = totals.TotalProfit.Add(day.Profit)
	}
	totals.TotalRevenue = pricing.Round(totals.TotalRevenue)
	totals.TotalProfit = pricing.Round(totals.TotalProfit)

	return domain.SessionReport{Session: *session, Totals: totals, Days: days}, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	return s.repo.Dashboard(ctx)
}
