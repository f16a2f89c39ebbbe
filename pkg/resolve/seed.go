package resolve

import (
	"context"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
)

// PredefinedDomains are created on start-up so extraction can place
// concepts under them from the first article on.
var PredefinedDomains = []common.Domain{
	{Name: "통신_네트워크", Description: "통신 기술, 네트워크 인프라, 통신 서비스 관련 주제"},
	{Name: "사이버_보안", Description: "정보 보안, 해킹 방지, 데이터 보호 관련 주제"},
	{Name: "환경_재활용", Description: "환경 보호, 재활용, 지속 가능성 관련 주제"},
	{Name: "IT_기기_가전", Description: "전자기기, 스마트폰, 가전제품 관련 주제"},
	{Name: "에너지_기술", Description: "에너지 생산, 저장, 분배 관련 주제"},
	{Name: "재난_대응", Description: "재난 상황 대처, 구호 활동 관련 주제"},
	{Name: "정책_규제", Description: "정부 정책, 산업 규제, 법률 관련 주제"},
	{Name: "연구개발_혁신", Description: "R&D, 기술 혁신, 연구 활동 관련 주제"},
}

// SeedDomains creates every predefined domain that does not exist yet.
// Running it again is a no-op.
func SeedDomains(ctx context.Context, repo Repository) error {
	created := 0
	for _, d := range PredefinedDomains {
		d.Active = true
		_, ok, err := repo.CreateDomainIfAbsent(ctx, d)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		logger.Info("[Resolve] Seeded predefined domains", "created", created)
	}
	return nil
}
