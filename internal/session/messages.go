package session

import (
	"fmt"
	"math"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/content"
)

const (
	commandDescriptionAzkar     = "إرسال أذكار بشكل دوري"
	commandDescriptionDua       = "إرسال أدعية بشكل دوري"
	commandDescriptionStopAzkar = "إيقاف إرسال الأذكار"
	commandDescriptionStopDua   = "إيقاف إرسال الأدعية"
	commandDescriptionPlay      = "تشغيل إذاعة القرآن الكريم"
	commandDescriptionStop      = "إيقاف تشغيل إذاعة القرآن الكريم"
	optionDescriptionDuration   = "المدة بالدقائق (من 30 دقيقة إلى 6 ساعات)"
	optionDescriptionStation    = "اختر إذاعة القرآن الكريم"

	messageEphemeralUnknownCommand   = "❌ أمر غير معروف"
	messageEphemeralFeatureDisabled  = "❌ هذه الميزة غير مفعلة حالياً"
	messageEphemeralInvalidDuration  = "❌ المدة يجب أن تكون بين 30 و 360 دقيقة"
	messageEphemeralAzkarActive      = "يوجد بالفعل أذكار نشطة في هذا السيرفر. استخدم `/توقف_الاذكار` أولاً"
	messageEphemeralDuaActive        = "يوجد بالفعل أدعية نشطة في هذا السيرفر. استخدم `/توقف_الدعاء` أولاً"
	messageEphemeralAzkarNotActive   = "لا يوجد أذكار نشطة حالياً"
	messageEphemeralDuaNotActive     = "لا يوجد أدعية نشطة حالياً"
	messageEphemeralAzkarStopped     = "⏹️ تم إيقاف إرسال الأذكار بنجاح"
	messageEphemeralDuaStopped       = "⏹️ تم إيقاف إرسال الأدعية بنجاح"
	messageEphemeralDataUnavailable  = "❌ لا توجد بيانات متاحة لهذا النوع"
	messageEphemeralJoinVoiceFirst   = "❌ يجب أن تكون في روم صوتي"
	messageEphemeralVoiceLookup      = "❌ تعذر التحقق من الروم الصوتي"
	messageEphemeralUnknownStation   = "❌ إذاعة غير معروفة"
	messageEphemeralPlaybackFailed   = "حدث خطأ أثناء تشغيل الإذاعة"
	messageEphemeralVoiceNotActive   = "لا يوجد بث نشط حالياً"
	messageEphemeralVoiceStopped     = "⏹️ تم إيقاف البث بنجاح"
	messageEphemeralStopFailed       = "حدث خطأ أثناء الإيقاف"
	messageEphemeralChannelGone      = "❌ الروم غير موجودة أو لا يمكن الوصول إليها"
	messagePlaylistStartedHint       = "📖 سيتم تشغيل القرآن الكريم بالترتيب من السورة 1 إلى 114\n🔄 سيعيد التشغيل تلقائياً عند الانتهاء\n⏹️ استخدم `/توقف` لإيقاف التشغيل"
	messageStreamStartedHint         = "📻 البث مستمر... استخدم `/توقف` لإيقاف البث"
	messageEphemeralStartFailed      = "حدث خطأ أثناء التفعيل"
	messageEphemeralBroadcastStarted = "✅ تم التفعيل في هذه القناة: %s كل %d دقيقة"

	messageEphemeralRateLimitedFormat = "⏳ لقد تجاوزت حد الطلبات، انتظر %d ثانية"
	messageEphemeralCooldownFormat    = "⏳ انتظر %d ثانية قبل استخدام أمر آخر"
)

func broadcastStartedMessage(kind content.Kind, minutes int) string {
	noun := "ذكر"
	if kind == content.KindDua {
		noun = "دعاء"
	}
	return fmt.Sprintf(messageEphemeralBroadcastStarted, noun, minutes)
}

func voiceStartedMessage(label string, playlist bool) string {
	hint := messageStreamStartedHint
	if playlist {
		hint = messagePlaylistStartedHint
	}
	return fmt.Sprintf("🎵 تم تشغيل %s بنجاح!\n%s", label, hint)
}

func waitSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
